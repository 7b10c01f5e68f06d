package action

import (
	"encoding/json"
	"errors"
	"testing"

	domainErrors "github.com/NocodeBuilds/ppe-inspector-sub000/internal/domain/errors"
)

func TestStatus_Valid(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusPending, true},
		{StatusCompleted, true},
		{StatusFailed, true},
		{Status("in_progress"), false},
		{Status(""), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatus_IsOutstanding(t *testing.T) {
	if !StatusPending.IsOutstanding() || !StatusFailed.IsOutstanding() {
		t.Error("pending and failed should be outstanding")
	}
	if StatusCompleted.IsOutstanding() {
		t.Error("completed should not be outstanding")
	}
}

func TestType_IsKnown(t *testing.T) {
	if !TypeUpdatePPE.IsKnown() {
		t.Error("update_ppe should be known")
	}
	if Type("sync_report").IsKnown() {
		t.Error("sync_report should not be known")
	}
}

func TestNewAction_Normalize(t *testing.T) {
	tests := []struct {
		name     string
		in       NewAction
		wantData string
		wantMeta string
		wantErr  error
	}{
		{
			name:     "valid payload",
			in:       NewAction{Type: TypeUpdatePPE, Data: json.RawMessage(`{"id":"ppe-1"}`)},
			wantData: `{"id":"ppe-1"}`,
		},
		{
			name:     "empty data defaults to object",
			in:       NewAction{Type: TypeMarkAllRead},
			wantData: `{}`,
		},
		{
			name:     "null metadata dropped",
			in:       NewAction{Type: "custom", Data: json.RawMessage(`[1]`), Metadata: json.RawMessage(`null`)},
			wantData: `[1]`,
		},
		{
			name:     "metadata kept",
			in:       NewAction{Type: "custom", Metadata: json.RawMessage(` {"source":"form"} `)},
			wantData: `{}`,
			wantMeta: `{"source":"form"}`,
		},
		{
			name:    "missing type",
			in:      NewAction{Type: "  "},
			wantErr: domainErrors.ErrActionTypeMissing,
		},
		{
			name:    "invalid data",
			in:      NewAction{Type: TypeUpdatePPE, Data: json.RawMessage(`{"id":`)},
			wantErr: domainErrors.ErrInvalidPayload,
		},
		{
			name:    "invalid metadata",
			in:      NewAction{Type: TypeUpdatePPE, Metadata: json.RawMessage(`nope`)},
			wantErr: domainErrors.ErrInvalidPayload,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := tt.in
			err := n.Normalize()
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Normalize() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			if string(n.Data) != tt.wantData {
				t.Errorf("Data = %s, want %s", n.Data, tt.wantData)
			}
			if string(n.Metadata) != tt.wantMeta {
				t.Errorf("Metadata = %s, want %s", n.Metadata, tt.wantMeta)
			}
		})
	}
}

func TestUpdate_Apply(t *testing.T) {
	a := &QueuedAction{ID: "a-1", Status: StatusPending}

	Retry(1, "timeout").Apply(a)
	if a.Status != StatusPending || a.RetryCount != 1 || a.LastError != "timeout" {
		t.Fatalf("after Retry: %+v", a)
	}

	Failed(3, "boom").Apply(a)
	if a.Status != StatusFailed || a.RetryCount != 3 || a.LastError != "boom" {
		t.Fatalf("after Failed: %+v", a)
	}

	Completed().Apply(a)
	if a.Status != StatusCompleted || a.LastError != "" {
		t.Fatalf("after Completed: %+v", a)
	}
	if a.RetryCount != 3 {
		t.Errorf("Completed should keep RetryCount, got %d", a.RetryCount)
	}

	Reset().Apply(a)
	if a.Status != StatusPending || a.RetryCount != 0 {
		t.Fatalf("after Reset: %+v", a)
	}
}

func TestQueuedAction_NextAttempt(t *testing.T) {
	a := &QueuedAction{RetryCount: 2}
	if got := a.NextAttempt(); got != 3 {
		t.Errorf("NextAttempt() = %d, want 3", got)
	}
}

func TestQueuedAction_DecodeData(t *testing.T) {
	a := &QueuedAction{Data: json.RawMessage(`{"id":"ppe-1","status":"flagged"}`)}
	var got map[string]string
	if err := a.DecodeData(&got); err != nil {
		t.Fatalf("DecodeData() error = %v", err)
	}
	if got["status"] != "flagged" {
		t.Errorf("status = %q, want flagged", got["status"])
	}

	empty := &QueuedAction{}
	var m map[string]any
	if err := empty.DecodeData(&m); err != nil {
		t.Fatalf("DecodeData(empty) error = %v", err)
	}
}

func TestCounts_Outstanding(t *testing.T) {
	c := Counts{Pending: 2, Failed: 1, Completed: 5}
	if got := c.Outstanding(); got != 3 {
		t.Errorf("Outstanding() = %d, want 3", got)
	}
}
