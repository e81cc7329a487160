package sink

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/biosignals"
)

func TestLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	l := NewLog(logger, slog.LevelInfo)
	require.NoError(t, l.Write(context.Background(), biosignals.Sample{Device: "ecg", Time: ts, Fields: []biosignals.Field{{Name: "ch1_raw", Value: 4096}}}))
	assert.Contains(t, buf.String(), "msg=sample")
	assert.Contains(t, buf.String(), "device=ecg")
	assert.Contains(t, buf.String(), "ch1_raw=4096")
	assert.Contains(t, buf.String(), "time=14:03:07:123456")
}

func TestMulti(t *testing.T) {
	var a, b bytes.Buffer
	m := Multi{NewCSV(&a), NewCSV(&b)}
	require.NoError(t, m.Write(context.Background(), biosignals.Sample{Time: ts, Fields: []biosignals.Field{{Name: "n", Value: 1}}}))
	assert.Equal(t, a.String(), b.String())
	assert.NotEmpty(t, a.String())
}
