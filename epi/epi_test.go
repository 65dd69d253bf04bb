package epi

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInspectionURL(t *testing.T) {
	assert.Equal(t,
		"f5-epi://vpn.example.com?server=vpn.example.com&protocol=https&port=443&sid=0123abcd",
		InspectionURL("vpn.example.com", "0123abcd"))
	assert.Equal(t,
		"f5-epi://vpn.example.com?server=vpn.example.com&protocol=https&port=443&sid=a%26b%3Dc+d",
		InspectionURL("vpn.example.com", "a&b=c d"))
}

func TestRunCapturesBothStreams(t *testing.T) {
	const n = 500
	script := fmt.Sprintf(`i=0; while [ $i -lt %d ]; do echo "out $i"; echo "err $i" >&2; i=$((i+1)); done`, n)

	res, err := NewRunner(log.NewNopLogger()).Run(context.Background(), []string{"sh", "-c", script}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)

	require.Len(t, res.Stdout, n)
	require.Len(t, res.Stderr, n)
	for i := 0; i < n; i++ {
		assert.Equal(t, fmt.Sprintf("out %d", i), res.Stdout[i])
		assert.Equal(t, fmt.Sprintf("err %d", i), res.Stderr[i])
	}
}

func TestRunLargeOutputDoesNotDeadlock(t *testing.T) {
	// Well past a pipe buffer on both streams.
	script := `i=0; while [ $i -lt 20000 ]; do echo "xxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx $i"; echo "yyyy $i" >&2; i=$((i+1)); done`
	res, err := NewRunner(log.NewNopLogger()).Run(context.Background(), []string{"sh", "-c", script}, nil)
	require.NoError(t, err)
	assert.Len(t, res.Stdout, 20000)
	assert.Len(t, res.Stderr, 20000)
	assert.Equal(t, "yyyy 19999", res.Stderr[19999])
}

func TestRunLinesLongerThanAMebibyte(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	script := `head -c 3000000 /dev/zero | tr '\0' x; echo; echo tail; head -c 2000000 /dev/zero | tr '\0' y >&2`
	done := make(chan struct{})
	var res *Result
	var err error
	go func() {
		defer close(done)
		res, err = NewRunner(log.NewNopLogger()).Run(ctx, []string{"sh", "-c", script}, nil)
	}()
	select {
	case <-done:
	case <-time.After(20 * time.Second):
		t.Fatal("inspector output was not drained")
	}

	require.NoError(t, err)
	require.Len(t, res.Stdout, 2)
	assert.Len(t, res.Stdout[0], 3000000)
	assert.Equal(t, "tail", res.Stdout[1])
	require.Len(t, res.Stderr, 1)
	assert.Len(t, res.Stderr[0], 2000000)
}

func TestRunKeepsEmptyLines(t *testing.T) {
	res, err := NewRunner(log.NewNopLogger()).Run(context.Background(), []string{"sh", "-c", `printf 'a\n\nb'`}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "", "b"}, res.Stdout)
}

func TestRunNonZeroExitIsNotAnError(t *testing.T) {
	res, err := NewRunner(log.NewNopLogger()).Run(context.Background(), []string{"sh", "-c", "echo denied >&2; exit 3"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, []string{"denied"}, res.Stderr)
	assert.Empty(t, res.Stdout)
}

func TestRunInheritsEnvironment(t *testing.T) {
	t.Setenv("EPI_TEST_MARKER", "present")
	res, err := NewRunner(log.NewNopLogger()).Run(context.Background(), []string{"sh", "-c", `echo "$EPI_TEST_MARKER"`}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"present"}, res.Stdout)

	env := append(os.Environ(), "EPI_TEST_MARKER=override")
	res, err = NewRunner(log.NewNopLogger()).Run(context.Background(), []string{"sh", "-c", `echo "$EPI_TEST_MARKER"`}, env)
	require.NoError(t, err)
	assert.Equal(t, []string{"override"}, res.Stdout)
}

func TestRunLogsEveryLine(t *testing.T) {
	var buf strings.Builder
	logger := log.NewLogfmtLogger(log.NewSyncWriter(&buf))

	_, err := NewRunner(logger).Run(context.Background(), []string{"sh", "-c", "echo hello; echo oops >&2"}, nil)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "stream=stdout")
	assert.Contains(t, out, "stream=stderr")
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, "oops")
}

func TestRunMissingBinary(t *testing.T) {
	_, err := NewRunner(log.NewNopLogger()).Run(context.Background(), []string{"/nonexistent/f5epi", "f5-epi://x"}, nil)
	assert.Error(t, err)

	_, err = NewRunner(log.NewNopLogger()).Run(context.Background(), nil, nil)
	assert.Error(t, err)
}
