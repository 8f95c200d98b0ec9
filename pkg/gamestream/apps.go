package gamestream

import (
	"fmt"

	"github.com/yly97/gamestream/pkg/transport"
)

const (
	appElement   = "App"
	appIDField   = "ID"
	appNameField = "AppTitle"
)

// AppEntry is one application of the host catalog. Attributes holds the
// remaining simple fields of the entry.
type AppEntry struct {
	ID         string
	Title      string
	Attributes map[string]string
}

func parseAppList(root *transport.Node) ([]AppEntry, error) {
	if code, ok := root.Attr("status_code"); ok && code != "200" {
		if code == "401" {
			return nil, fmt.Errorf("%w: applist status_code %s", transport.ErrAuthenticationRejected, code)
		}
		return nil, fmt.Errorf("%w: applist status_code %s", transport.ErrMalformedResponse, code)
	}

	nodes := root.Children(appElement)
	apps := make([]AppEntry, 0, len(nodes))
	for i, n := range nodes {
		app := AppEntry{Attributes: make(map[string]string)}
		for _, field := range n.Nodes {
			// Container elements are dropped, not flattened.
			if field.HasChildren() {
				continue
			}
			switch field.Name() {
			case appIDField:
				app.ID = field.Text()
			case appNameField:
				app.Title = field.Text()
			default:
				app.Attributes[field.Name()] = field.Text()
			}
		}
		if app.ID == "" || app.Title == "" {
			return nil, fmt.Errorf("%w: applist entry %d lacks %s or %s",
				transport.ErrMalformedResponse, i, appIDField, appNameField)
		}
		apps = append(apps, app)
	}
	return apps, nil
}
