package timezone

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNowIsStoreLocal(t *testing.T) {
	require.Equal(t, "Europe/London", Location.String())
	require.Equal(t, Location, Now().Location())
}
