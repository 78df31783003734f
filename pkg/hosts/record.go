// Package hosts defines the Vectra host inventory record schema and the
// decoding of paginated listing responses.
package hosts

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FieldNames is the fixed export schema, in column order.
var FieldNames = []string{
	"id",
	"name",
	"sensor",
	"last_source",
	"ip_address",
	"state",
	"last_modified",
	"last_detection_timestamp",
	"threat",
	"certainty",
	"privilege_level",
	"privilege_category",
	"host_artifact_set",
	"tags",
}

// Artifact is one entry of a host's artifact set.
type Artifact struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// apiHost is a host as returned by the listing endpoint. Records are
// immutable snapshots; nothing here is written back.
type apiHost struct {
	ID                     json.Number `json:"id"`
	Name                   string      `json:"name"`
	Sensor                 string      `json:"sensor"`
	SensorName             string      `json:"sensor_name"`
	LastSource             string      `json:"last_source"`
	IP                     string      `json:"ip"`
	State                  string      `json:"state"`
	LastModified           string      `json:"last_modified"`
	LastDetectionTimestamp string      `json:"last_detection_timestamp"`
	Threat                 json.Number `json:"threat"`
	Certainty              json.Number `json:"certainty"`
	PrivilegeLevel         json.Number `json:"privilege_level"`
	PrivilegeCategory      string      `json:"privilege_category"`
	HostArtifactSet        []Artifact  `json:"host_artifact_set"`
	Tags                   []string    `json:"tags"`
}

// Record is a flattened host ready for tabular output.
type Record struct {
	ID                     string
	Name                   string
	Sensor                 string
	LastSource             string
	IPAddress              string
	State                  string
	LastModified           string
	LastDetectionTimestamp string
	Threat                 string
	Certainty              string
	PrivilegeLevel         string
	PrivilegeCategory      string
	HostArtifactSet        string
	Tags                   string
}

// Values returns the record's fields in FieldNames order.
func (r Record) Values() []string {
	return []string{
		r.ID,
		r.Name,
		r.Sensor,
		r.LastSource,
		r.IPAddress,
		r.State,
		r.LastModified,
		r.LastDetectionTimestamp,
		r.Threat,
		r.Certainty,
		r.PrivilegeLevel,
		r.PrivilegeCategory,
		r.HostArtifactSet,
		r.Tags,
	}
}

// Page is one response of the paginated hosts listing. Next is empty
// exactly on the last page.
type Page struct {
	Records []Record
	Next    string
	Count   int
}

// pageBody is the raw listing response envelope.
type pageBody struct {
	Count   int       `json:"count"`
	Next    *string   `json:"next"`
	Results []apiHost `json:"results"`
}

// DecodePage parses a listing response body into flattened records.
func DecodePage(body []byte) (*Page, error) {
	var pb pageBody
	if err := json.Unmarshal(body, &pb); err != nil {
		return nil, fmt.Errorf("decode hosts page: %w", err)
	}

	page := &Page{
		Records: make([]Record, 0, len(pb.Results)),
		Count:   pb.Count,
	}
	if pb.Next != nil {
		page.Next = *pb.Next
	}
	for _, h := range pb.Results {
		page.Records = append(page.Records, flatten(h))
	}
	return page, nil
}

// flatten maps an API host onto the export schema. The sensor column
// prefers sensor_name over sensor, matching the platform's newer payloads.
func flatten(h apiHost) Record {
	sensor := h.SensorName
	if sensor == "" {
		sensor = h.Sensor
	}

	artifacts := make([]string, 0, len(h.HostArtifactSet))
	for _, a := range h.HostArtifactSet {
		artifactType := a.Type
		if artifactType == "" {
			artifactType = "Unknown"
		}
		value := a.Value
		if value == "" {
			value = "Unknown"
		}
		artifacts = append(artifacts, artifactType+":"+value)
	}

	return Record{
		ID:                     h.ID.String(),
		Name:                   h.Name,
		Sensor:                 sensor,
		LastSource:             h.LastSource,
		IPAddress:              h.IP,
		State:                  h.State,
		LastModified:           h.LastModified,
		LastDetectionTimestamp: h.LastDetectionTimestamp,
		Threat:                 numberOrZero(h.Threat),
		Certainty:              numberOrZero(h.Certainty),
		PrivilegeLevel:         numberOrEmpty(h.PrivilegeLevel),
		PrivilegeCategory:      h.PrivilegeCategory,
		HostArtifactSet:        strings.Join(artifacts, "; "),
		Tags:                   strings.Join(h.Tags, ", "),
	}
}

// numberOrZero renders scores, defaulting absent values to 0.
func numberOrZero(n json.Number) string {
	if n.String() == "" {
		return "0"
	}
	return n.String()
}

// numberOrEmpty renders optional numeric fields.
func numberOrEmpty(n json.Number) string {
	return n.String()
}
