package hosttest

import (
	"fmt"
	"strings"
)

var defaultTitles = []string{
	"Desktop", "Steam Big Picture", "Cyberpunk 2077", "Hades", "Celeste",
	"Elden Ring", "Forza Horizon 5", "Portal 2", "Stardew Valley", "Doom Eternal",
	"Hollow Knight", "Rocket League", "Outer Wilds", "Control", "Disco Elysium",
	"Dead Cells", "Half-Life: Alyx", "Factorio",
}

// NestedApp is the index in DefaultApps of the entry carrying a nested
// element.
const NestedApp = 3

// DefaultApps is an applist body with 18 entries. Entry NestedApp has an
// element with sub-elements.
func DefaultApps() string {
	var b strings.Builder
	for i, title := range defaultTitles {
		b.WriteString("<App>")
		fmt.Fprintf(&b, "<AppTitle>%s</AppTitle>", title)
		fmt.Fprintf(&b, "<ID>%d</ID>", 1000+i)
		b.WriteString("<IsHdrSupported>0</IsHdrSupported>")
		if i == NestedApp {
			b.WriteString("<Boxart><Url>http://example/box.png</Url><Width>628</Width></Boxart>")
		}
		b.WriteString("</App>")
	}
	return b.String()
}
