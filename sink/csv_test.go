package sink

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/biosignals"
)

var ts = time.Date(2022, time.April, 12, 14, 3, 7, 123456789, time.UTC)

func TestFormatTime(t *testing.T) {
	assert.Equal(t, "14:03:07:123456", FormatTime(ts))
	assert.Equal(t, "00:00:00:000000", FormatTime(time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestCSV(t *testing.T) {
	var buf bytes.Buffer
	c := NewCSV(&buf, WithHeader())
	ctx := context.Background()
	require.NoError(t, c.Write(ctx, biosignals.Sample{Time: ts, Fields: []biosignals.Field{
		{Name: "ch1_raw", Value: 4096},
		{Name: "ch1_ecg_volts", Value: -0.5},
	}}))
	require.NoError(t, c.Write(ctx, biosignals.Sample{Time: ts.Add(5 * time.Millisecond), Fields: []biosignals.Field{
		{Name: "ch1_ecg_volts", Value: 0.25},
	}}))
	expected := "timestamp,ch1_raw,ch1_ecg_volts\n" +
		"14:03:07:123456,4096,-0.5\n" +
		"14:03:07:128456,,0.25\n"
	assert.Equal(t, expected, buf.String())
}

func TestCSV_Columns(t *testing.T) {
	var buf bytes.Buffer
	c := NewCSV(&buf, WithColumns("ain0_raw"))
	require.NoError(t, c.Write(context.Background(), biosignals.Sample{Time: ts, Fields: []biosignals.Field{
		{Name: "ch1_raw", Value: 1},
		{Name: "ain0_raw", Value: 1193046},
	}}))
	assert.Equal(t, "14:03:07:123456,1193046\n", buf.String())
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestCSV_WriteError(t *testing.T) {
	c := NewCSV(failingWriter{})
	err := c.Write(context.Background(), biosignals.Sample{Time: ts, Fields: []biosignals.Field{{Name: "n", Value: 1}}})
	assert.Error(t, err)
}
