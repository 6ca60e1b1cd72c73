package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Veraticus/onion-topology/internal/classification"
	"github.com/Veraticus/onion-topology/internal/config"
	"github.com/Veraticus/onion-topology/internal/model"
	"github.com/Veraticus/onion-topology/internal/session"
	"github.com/Veraticus/onion-topology/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func runSession(t *testing.T) *session.Context {
	t.Helper()
	b := testutil.NewLogBuilder().
		Walk(0, 5*time.Minute, "alice", "MAIN", "HALL", "LAB").
		Walk(10*time.Minute, 5*time.Minute, "bob", "MAIN", "HALL")
	ctx, _, err := session.Run(session.Request{
		Table:   b.Table(),
		Mapping: testutil.StandardMapping(),
		Raw:     []byte("fixture"),
	}, classification.NewCache(nil), config.DefaultProcessing(), nil)
	require.NoError(t, err)
	return ctx
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "json", want: FormatJSON},
		{in: " YAML ", want: FormatYAML},
		{in: "yml", want: FormatYAML},
		{in: "csv", want: FormatCSV},
		{in: "xml", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, FormatYAML, FormatForPath("out/result.yml"))
	assert.Equal(t, FormatCSV, FormatForPath("stats.CSV"))
	assert.Equal(t, FormatJSON, FormatForPath("result"))
}

func TestWriteBundle_JSON(t *testing.T) {
	ctx := runSession(t)
	var buf bytes.Buffer
	require.NoError(t, WriteBundle(&buf, FormatJSON, NewBundle(ctx)))

	var decoded struct {
		Session struct {
			ID     string `json:"session_id"`
			Status string `json:"status"`
			Doors  []struct {
				DoorID string `json:"door_id"`
				Layer  int    `json:"onion_layer"`
			} `json:"door_attributes"`
		} `json:"session"`
		Elements session.Elements `json:"elements"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))

	assert.Equal(t, ctx.ID, decoded.Session.ID)
	assert.Equal(t, "completed", decoded.Session.Status)
	require.Len(t, decoded.Session.Doors, 3)
	assert.Equal(t, "MAIN", decoded.Session.Doors[0].DoorID)
	assert.Equal(t, ctx.Elements(), decoded.Elements)
}

func TestWriteBundle_YAML(t *testing.T) {
	ctx := runSession(t)
	var buf bytes.Buffer
	require.NoError(t, WriteBundle(&buf, FormatYAML, NewBundle(ctx)))

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	sess, ok := decoded["session"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, ctx.ID, sess["session_id"])
	assert.Contains(t, buf.String(), "most_common_next")
}

func TestWriteBundle_Deterministic(t *testing.T) {
	var a, b bytes.Buffer
	require.NoError(t, WriteBundle(&a, FormatJSON, NewBundle(runSession(t))))
	require.NoError(t, WriteBundle(&b, FormatJSON, NewBundle(runSession(t))))
	assert.Equal(t, a.String(), b.String())
}

func TestWriteStatsCSV(t *testing.T) {
	ctx := runSession(t)
	var buf bytes.Buffer
	require.NoError(t, WriteBundle(&buf, FormatCSV, NewBundle(ctx)))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.NotEmpty(t, records)
	assert.Equal(t, []string{"metric", "value"}, records[0])

	values := make(map[string]string, len(records))
	for _, r := range records[1:] {
		values[r[0]] = r[1]
	}
	assert.Equal(t, "5", values["cleaned_events"])
	assert.Equal(t, "2", values["unique_users"])
	assert.Equal(t, "2024-01-15", values["date_start"])
	assert.Equal(t, "3", values["doors_unclassified"])
	assert.Equal(t, "HALL (2)", values["top_device_1"], "ties go to the smaller door ID")

	err = WriteBundle(&buf, FormatCSV, Bundle{})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestWriteElements(t *testing.T) {
	ctx := runSession(t)
	var buf bytes.Buffer
	require.NoError(t, WriteElements(&buf, FormatYAML, ctx.Elements()))

	var decoded session.Elements
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, ctx.Elements(), decoded)

	assert.ErrorIs(t, WriteElements(&buf, FormatCSV, ctx.Elements()), ErrUnsupportedFormat)
}

func TestWriteFile(t *testing.T) {
	ctx := runSession(t)
	path := filepath.Join(t.TempDir(), "result.yaml")
	require.NoError(t, WriteFile(path, NewBundle(ctx)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "session:"), string(data[:min(len(data), 40)]))

	err = WriteFile(filepath.Join(t.TempDir(), "missing", "result.json"), NewBundle(ctx))
	assert.Error(t, err)
}

func TestWriteFileAs(t *testing.T) {
	ctx := runSession(t)
	path := filepath.Join(t.TempDir(), "result.out")
	require.NoError(t, WriteFileAs(path, FormatCSV, NewBundle(ctx)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "metric,value"), string(data[:min(len(data), 40)]))

	assert.ErrorIs(t, WriteFileAs(path, Format("xml"), NewBundle(ctx)), ErrUnsupportedFormat)
}

func TestClassifications_RoundTrip(t *testing.T) {
	in := ClassificationFile{
		Fingerprint: model.Fingerprint([]string{"Event Time", "Badge", "Reader", "Result"}),
		Doors: model.ClassificationRecord{
			"MAIN": {Floor: "1", IsEntranceExit: model.Bool(true), SecurityLevel: model.SecurityGreen},
			"LAB":  {IsStair: model.Bool(false), SecurityLevel: model.SecurityRed},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteClassifications(&buf, in))

	out, err := ReadClassifications(&buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestReadClassifications(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
		check   func(t *testing.T, f ClassificationFile)
	}{
		{
			name:  "orange is read as yellow",
			input: "doors:\n  GATE:\n    security_level: Orange\n",
			check: func(t *testing.T, f ClassificationFile) {
				assert.Equal(t, model.SecurityYellow, f.Doors["GATE"].SecurityLevel)
			},
		},
		{
			name:  "blank level stays blank",
			input: "doors:\n  GATE:\n    floor: \"2\"\n",
			check: func(t *testing.T, f ClassificationFile) {
				assert.Equal(t, model.SecurityLevel(""), f.Doors["GATE"].SecurityLevel)
				assert.Equal(t, "2", f.Doors["GATE"].Floor)
			},
		},
		{
			name:  "json input",
			input: `{"doors": {"GATE": {"is_entrance_exit": true}}}`,
			check: func(t *testing.T, f ClassificationFile) {
				require.NotNil(t, f.Doors["GATE"].IsEntranceExit)
				assert.True(t, *f.Doors["GATE"].IsEntranceExit)
			},
		},
		{
			name:  "no doors",
			input: "header_fingerprint: x\n",
			check: func(t *testing.T, f ClassificationFile) {
				assert.NotNil(t, f.Doors)
				assert.Empty(t, f.Doors)
			},
		},
		{name: "unknown level", input: "doors:\n  GATE:\n    security_level: purple\n", wantErr: "unknown security level"},
		{name: "unknown field", input: "doors:\n  GATE:\n    colour: red\n", wantErr: "failed to decode"},
		{name: "empty", input: "", wantErr: "empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ReadClassifications(strings.NewReader(tt.input))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, f)
		})
	}
}
