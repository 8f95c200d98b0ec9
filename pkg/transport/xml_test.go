package transport

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseTree(t *testing.T) {
	require := require.New(t)

	root, err := Parse([]byte(`<root status_code="200">
	<App><AppTitle>Steam</AppTitle><ID>1</ID></App>
	<App><AppTitle> Desktop </AppTitle><ID>2</ID><Extra><Nested>x</Nested></Extra></App>
</root>`))
	require.NoError(err)
	require.Equal("root", root.Name())

	apps := root.Children("App")
	require.Len(apps, 2)
	title, ok := apps[1].ChildText("AppTitle")
	require.True(ok)
	require.Equal("Desktop", title)
	require.True(apps[1].Child("Extra").HasChildren())
	require.False(apps[1].Child("ID").HasChildren())

	_, ok = root.Attr("missing")
	require.False(ok)
	require.Nil(root.Child("missing"))
}
