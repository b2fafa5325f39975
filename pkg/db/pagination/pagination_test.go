package pagination

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	require.Equal(t, Pagination{Page: 1, Limit: DefaultLimit}, Pagination{}.Normalize())
	require.Equal(t, Pagination{Page: 3, Limit: MaxLimit}, Pagination{Page: 3, Limit: 1000}.Normalize())
	require.Equal(t, 20, Pagination{Page: 3, Limit: 10}.Offset())
}

func TestBuildPageInfo(t *testing.T) {
	info := BuildPageInfo(Pagination{Page: 1, Limit: 10}, 25)
	require.True(t, info.HasMore)
	require.Equal(t, int64(25), info.Total)

	info = BuildPageInfo(Pagination{Page: 3, Limit: 10}, 25)
	require.False(t, info.HasMore)
}
