package browser

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRaceScriptContainsEveryProbe(t *testing.T) {
	script := raceScript([]Probe{
		Css("email", "input#ap_email"),
		WithText("picker", "h1", "Select an account"),
	})
	require.Contains(t, script, `"input#ap_email"`)
	require.Contains(t, script, `"email"`)
	require.Contains(t, script, `"Select an account"`)
	require.Contains(t, script, `return false`)
}

func TestJsStringEscapes(t *testing.T) {
	require.Equal(t, `"a\"b"`, jsString(`a"b`))
	require.Equal(t, `"line\nbreak"`, jsString("line\nbreak"))
}

func TestSelectScriptDispatchesChange(t *testing.T) {
	script := selectScript(`select[name="pageSizeDropDown"]`, "250")
	require.Contains(t, script, `"250"`)
	require.Contains(t, script, `new Event("change"`)
	require.Contains(t, script, `new Event("input"`)
}

func TestFirstRowChangedScriptSentinel(t *testing.T) {
	// with no pre-existing row, the script must only fire once a row
	// appears, i.e. the empty sentinel never compares equal to a row.
	script := firstRowChangedScript("table tbody", "")
	require.Contains(t, script, `return "" !== "";`)
}

func TestOriginSeedScriptScopedToOrigin(t *testing.T) {
	state := &StorageState{
		Origins: []OriginState{{
			Origin: "https://example.com",
			LocalStorage: []StorageEntry{
				{Name: "k", Value: "v"},
			},
		}},
	}
	script := state.originSeedScript()
	require.Contains(t, script, `location.origin === "https://example.com"`)
	require.Contains(t, script, `localStorage.setItem("k", "v")`)

	require.Empty(t, (&StorageState{}).originSeedScript())
}
