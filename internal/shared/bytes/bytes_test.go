package bytes

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsSamePayload(t *testing.T) {
	small := []byte("short payload")
	require.True(t, IsSamePayload(small, []byte("short payload")))
	require.False(t, IsSamePayload(small, []byte("other payload")))

	big := make([]byte, 1024)
	for i := range big {
		big[i] = byte(i)
	}
	same := append([]byte(nil), big...)
	require.True(t, IsSamePayload(big, same))

	diffLen := append([]byte(nil), big[:1023]...)
	require.False(t, IsSamePayload(big, diffLen))

	diff := append([]byte(nil), big...)
	diff[0] ^= 0xff
	require.False(t, IsSamePayload(big, diff))
}

func TestFmtMem(t *testing.T) {
	require.Equal(t, "512B", FmtMem(512))
	require.Equal(t, "1KB 0B", FmtMem(1024))
	require.Equal(t, "2MB 512KB", FmtMem(2*1024*1024+512*1024))
	require.Equal(t, "1GB 0MB", FmtMem(1<<30))
}
