package tracking

import (
	"testing"

	"github.com/mlbridge-io/mlbridge/pkg/api"
)

func TestParseFilter(t *testing.T) {
	tests := []struct {
		name    string
		filter  string
		want    Filter
		wantErr bool
	}{
		{
			name:   "empty",
			filter: "",
			want:   nil,
		},
		{
			name:   "bare dotted tag key",
			filter: `tags.mlflow.parentRunId = 'abc123'`,
			want:   Filter{{Entity: "tags", Key: "mlflow.parentRunId", Op: "=", Value: "abc123"}},
		},
		{
			name:   "backquoted key double quoted value",
			filter: "tags.`mlflow.parentRunId` = \"abc123\"",
			want:   Filter{{Entity: "tags", Key: "mlflow.parentRunId", Op: "=", Value: "abc123"}},
		},
		{
			name:   "attribute status",
			filter: `attributes.status = 'RUNNING'`,
			want:   Filter{{Entity: "attributes", Key: "status", Op: "=", Value: "RUNNING"}},
		},
		{
			name:   "not equal",
			filter: `attributes.run_name != 'check'`,
			want:   Filter{{Entity: "attributes", Key: "run_name", Op: "!=", Value: "check"}},
		},
		{
			name:   "conjunction",
			filter: `tags.stage = 'train' AND attributes.status = 'FINISHED'`,
			want: Filter{
				{Entity: "tags", Key: "stage", Op: "=", Value: "train"},
				{Entity: "attributes", Key: "status", Op: "=", Value: "FINISHED"},
			},
		},
		{
			name:   "lowercase and",
			filter: `tags.a = '1' and tags.b = '2'`,
			want: Filter{
				{Entity: "tags", Key: "a", Op: "=", Value: "1"},
				{Entity: "tags", Key: "b", Op: "=", Value: "2"},
			},
		},
		{name: "metrics unsupported", filter: `metrics.rmse = '1'`, wantErr: true},
		{name: "params unsupported", filter: `params.lr = '0.1'`, wantErr: true},
		{name: "unknown entity", filter: `bogus.key = '1'`, wantErr: true},
		{name: "unquoted value", filter: `tags.a = abc`, wantErr: true},
		{name: "unterminated value", filter: `tags.a = 'abc`, wantErr: true},
		{name: "missing operator", filter: `tags.a 'abc'`, wantErr: true},
		{name: "trailing garbage", filter: `tags.a = '1' OR tags.b = '2'`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFilter(tt.filter)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFilter(%q) error = %v, wantErr %v", tt.filter, err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ParseFilter(%q) = %+v, want %+v", tt.filter, got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("clause[%d] = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestFilterMatches(t *testing.T) {
	run := &api.Run{
		Info: api.RunInfo{
			RunID:   "0123456789abcdef0123456789abcdef",
			RunName: "store_1",
			Status:  api.RunStatusFinished,
		},
		Data: api.RunData{Tags: []api.RunTag{
			{Key: api.TagParentRunID, Value: "ffffffffffffffffffffffffffffffff"},
			{Key: "stage", Value: "train"},
		}},
	}

	tests := []struct {
		name   string
		filter string
		want   bool
	}{
		{"parent tag equal", `tags.mlflow.parentRunId = 'ffffffffffffffffffffffffffffffff'`, true},
		{"parent tag other value", `tags.mlflow.parentRunId = 'other'`, false},
		{"missing tag equal", `tags.nope = 'x'`, false},
		{"missing tag not equal", `tags.nope != 'x'`, true},
		{"status attribute", `attributes.status = 'FINISHED'`, true},
		{"run name attribute", `attributes.run_name = 'store_1'`, true},
		{"conjunction both hold", `tags.stage = 'train' AND attributes.status = 'FINISHED'`, true},
		{"conjunction one fails", `tags.stage = 'train' AND attributes.status = 'RUNNING'`, false},
		{"empty matches", ``, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ParseFilter(tt.filter)
			if err != nil {
				t.Fatalf("ParseFilter(%q) error = %v", tt.filter, err)
			}
			if got := f.Matches(run); got != tt.want {
				t.Errorf("Matches() = %v, want %v for filter %q", got, tt.want, tt.filter)
			}
		})
	}
}
