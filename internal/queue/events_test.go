package queue

import (
	"testing"
)

func TestEngagementEvent_MapRoundTrip(t *testing.T) {
	event := NewPostLikedEvent(42, 7, "instance-a")

	values, err := event.ToMap()
	if err != nil {
		t.Fatalf("ToMap failed: %v", err)
	}
	if values["type"] != EventPostLiked {
		t.Errorf("type field = %v, want %s", values["type"], EventPostLiked)
	}

	got, err := ParseEngagementEvent(values)
	if err != nil {
		t.Fatalf("ParseEngagementEvent failed: %v", err)
	}
	if got != event {
		t.Errorf("parsed %+v, want %+v", got, event)
	}
}

func TestParseEngagementEvent_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]interface{}
	}{
		{"missing data", map[string]interface{}{"type": EventPostLiked}},
		{"non-string data", map[string]interface{}{"data": 12}},
		{"invalid json", map[string]interface{}{"data": "{not json"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseEngagementEvent(tt.values); err == nil {
				t.Error("expected parse error")
			}
		})
	}
}

func TestConsumerGroup_PerInstance(t *testing.T) {
	if a, b := ConsumerGroup("a"), ConsumerGroup("b"); a == b {
		t.Errorf("instances share group %q", a)
	}
	if got := ConsumerGroup("node-1"); got != "count_invalidators:node-1" {
		t.Errorf("ConsumerGroup() = %q", got)
	}
}
