package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Veraticus/onion-topology/internal/config"
	"github.com/Veraticus/onion-topology/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultParser() *Parser {
	return NewParser(config.Files{MaxFileSize: 10 * 1024 * 1024, MaxRows: 1_000_000})
}

func TestParser_ParseFile(t *testing.T) {
	content := "\xEF\xBB\xBF\n Event Time ,Badge,Reader,Result\n" +
		"2024-01-15 08:00:00,alice,MAIN,ACCESS GRANTED\n" +
		",,,\n" +
		"2024-01-15 08:05:00,bob,\"LAB, EAST\",ACCESS GRANTED\n"

	up, err := defaultParser().ParseFile(context.Background(), "log.csv", strings.NewReader(content))
	require.NoError(t, err)

	assert.Equal(t, "log.csv", up.Filename)
	assert.Equal(t, []byte(content), up.Raw, "raw bytes are kept as uploaded")
	assert.Equal(t, []string{"Event Time", "Badge", "Reader", "Result"}, up.Table.Headers)
	require.Len(t, up.Table.Rows, 2, "blank rows are skipped")
	assert.Equal(t, "LAB, EAST", up.Table.Rows[1][2])
}

func TestParser_Delimiters(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    rune
	}{
		{name: "comma", content: "a,b,c\n1,2,3\n", want: ','},
		{name: "semicolon", content: "a;b;c\n1;2;3\n", want: ';'},
		{name: "tab", content: "a\tb\tc\n1\t2\t3\n", want: '\t'},
		{name: "pipe", content: "a|b|c\n1|2|3\n", want: '|'},
		{name: "single column", content: "a\n1\n", want: ','},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SniffDelimiter([]byte(tt.content)))

			table, err := defaultParser().Decode(context.Background(), []byte(tt.content))
			require.NoError(t, err)
			require.Len(t, table.Rows, 1)
			assert.Equal(t, len(table.Headers), len(table.Rows[0]))
		})
	}
}

func TestParser_Limits(t *testing.T) {
	content := "a,b\n1,2\n3,4\n5,6\n"

	t.Run("file size", func(t *testing.T) {
		p := NewParser(config.Files{MaxFileSize: 8, MaxRows: 100})
		_, err := p.ParseFile(context.Background(), "big.csv", strings.NewReader(content))
		assert.True(t, errors.Is(err, ErrFileTooLarge), "got %v", err)
	})

	t.Run("row count", func(t *testing.T) {
		p := NewParser(config.Files{MaxFileSize: 1024, MaxRows: 2})
		_, err := p.ParseFile(context.Background(), "long.csv", strings.NewReader(content))
		assert.True(t, errors.Is(err, ErrTooManyRows), "got %v", err)
	})

	t.Run("exactly at the limits", func(t *testing.T) {
		p := NewParser(config.Files{MaxFileSize: int64(len(content)), MaxRows: 3})
		up, err := p.ParseFile(context.Background(), "ok.csv", strings.NewReader(content))
		require.NoError(t, err)
		assert.Len(t, up.Table.Rows, 3)
	})
}

func TestParser_EmptyInput(t *testing.T) {
	_, err := defaultParser().Decode(context.Background(), []byte("\xEF\xBB\xBF \n\n"))
	assert.ErrorIs(t, err, ErrNoHeader)
}

func TestParser_RaggedRowsKept(t *testing.T) {
	table, err := defaultParser().Decode(context.Background(), []byte("a,b,c\n1,2\n1,2,3,4\n"))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"1", "2"}, {"1", "2", "3", "4"}}, table.Rows)
}

func TestParser_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := defaultParser().Decode(ctx, []byte("a\n1\n"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSuggestMapping(t *testing.T) {
	tests := []struct {
		want    model.ColumnMapping
		name    string
		headers []string
	}{
		{
			name:    "common export",
			headers: []string{"Event Time", "Badge ID", "Door Name", "Access Result"},
			want: model.ColumnMapping{
				"Event Time":    model.RoleTimestamp,
				"Badge ID":      model.RoleUserID,
				"Door Name":     model.RoleDoorID,
				"Access Result": model.RoleEventType,
			},
		},
		{
			name:    "snake case",
			headers: []string{"timestamp", "user_id", "device_name", "event_type", "notes"},
			want: model.ColumnMapping{
				"timestamp":   model.RoleTimestamp,
				"user_id":     model.RoleUserID,
				"device_name": model.RoleDoorID,
				"event_type":  model.RoleEventType,
			},
		},
		{
			name:    "exact name beats loose match",
			headers: []string{"Card Reader Location", "Location", "Time", "Person"},
			want: model.ColumnMapping{
				"Location": model.RoleDoorID,
				"Time":     model.RoleTimestamp,
				"Person":   model.RoleUserID,
			},
		},
		{
			name:    "nothing recognizable",
			headers: []string{"foo", "bar"},
			want:    model.ColumnMapping{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SuggestMapping(tt.headers))
		})
	}
}

func TestNewHeaderDetector(t *testing.T) {
	_, err := NewHeaderDetector([]HeaderPattern{{Name: "Bad", Regex: `[broken`}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to compile header pattern")

	d, err := NewHeaderDetector(DefaultHeaderPatterns())
	require.NoError(t, err)
	assert.Equal(t, len(DefaultHeaderPatterns()), d.PatternCount())
	for i := 0; i < len(d.patterns)-1; i++ {
		assert.GreaterOrEqual(t, d.patterns[i].Priority, d.patterns[i+1].Priority)
	}

	m := d.Match("CARDHOLDER")
	require.NotNil(t, m)
	assert.Equal(t, model.RoleUserID, m.Role)
	assert.Nil(t, d.Match("zzz"))
}
