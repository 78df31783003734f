package hosts

import (
	"testing"
)

func TestDecodePage_Full(t *testing.T) {
	body := []byte(`{
		"count": 2,
		"next": "https://example.vectra.ai/api/v3.4/hosts?page=2&page_size=100",
		"results": [
			{
				"id": 101,
				"name": "workstation-01",
				"sensor_name": "sensor-east",
				"last_source": "10.0.0.5",
				"ip": "10.0.0.5",
				"state": "active",
				"last_modified": "2026-08-01T10:00:00Z",
				"last_detection_timestamp": "2026-08-01T09:55:00Z",
				"threat": 70,
				"certainty": 55,
				"privilege_level": 3,
				"privilege_category": "medium",
				"host_artifact_set": [
					{"type": "dns", "value": "workstation-01.corp.local"},
					{"type": "kerberos", "value": "ws01$"}
				],
				"tags": ["finance", "vip"]
			},
			{
				"id": 102,
				"name": "server-02",
				"sensor": "legacy-sensor",
				"ip": "10.0.0.6",
				"state": "active"
			}
		]
	}`)

	page, err := DecodePage(body)
	if err != nil {
		t.Fatalf("DecodePage() error = %v", err)
	}

	if page.Count != 2 {
		t.Errorf("Count = %d, want 2", page.Count)
	}
	if page.Next == "" {
		t.Error("Next is empty, want next page URL")
	}
	if len(page.Records) != 2 {
		t.Fatalf("records = %d, want 2", len(page.Records))
	}

	first := page.Records[0]
	if first.ID != "101" {
		t.Errorf("ID = %q, want 101", first.ID)
	}
	if first.Sensor != "sensor-east" {
		t.Errorf("Sensor = %q, want sensor_name value", first.Sensor)
	}
	if first.HostArtifactSet != "dns:workstation-01.corp.local; kerberos:ws01$" {
		t.Errorf("HostArtifactSet = %q", first.HostArtifactSet)
	}
	if first.Tags != "finance, vip" {
		t.Errorf("Tags = %q", first.Tags)
	}
	if first.Threat != "70" || first.Certainty != "55" {
		t.Errorf("scores = %s/%s, want 70/55", first.Threat, first.Certainty)
	}

	second := page.Records[1]
	if second.Sensor != "legacy-sensor" {
		t.Errorf("Sensor = %q, want fallback to sensor field", second.Sensor)
	}
	if second.Threat != "0" || second.Certainty != "0" {
		t.Errorf("absent scores = %s/%s, want 0/0", second.Threat, second.Certainty)
	}
	if second.Tags != "" {
		t.Errorf("Tags = %q, want empty", second.Tags)
	}
}

func TestDecodePage_LastPage(t *testing.T) {
	page, err := DecodePage([]byte(`{"count": 1, "next": null, "results": [{"id": 1, "name": "h"}]}`))
	if err != nil {
		t.Fatalf("DecodePage() error = %v", err)
	}
	if page.Next != "" {
		t.Errorf("Next = %q, want empty on last page", page.Next)
	}
}

func TestDecodePage_Malformed(t *testing.T) {
	if _, err := DecodePage([]byte(`<html>gateway timeout</html>`)); err == nil {
		t.Error("DecodePage() expected error for non-JSON body")
	}
}

func TestDecodePage_ArtifactDefaults(t *testing.T) {
	body := []byte(`{"results": [{"id": 1, "host_artifact_set": [{"value": "x"}, {"type": "dns"}]}]}`)
	page, err := DecodePage(body)
	if err != nil {
		t.Fatalf("DecodePage() error = %v", err)
	}
	if got := page.Records[0].HostArtifactSet; got != "Unknown:x; dns:Unknown" {
		t.Errorf("HostArtifactSet = %q, want Unknown placeholders", got)
	}
}

func TestRecord_ValuesMatchesFieldNames(t *testing.T) {
	r := Record{ID: "1", Name: "h", Tags: "a, b"}
	values := r.Values()
	if len(values) != len(FieldNames) {
		t.Fatalf("Values() length = %d, want %d", len(values), len(FieldNames))
	}
	if values[0] != "1" || values[1] != "h" || values[len(values)-1] != "a, b" {
		t.Errorf("Values() order does not match FieldNames: %v", values)
	}
}
