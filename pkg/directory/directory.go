// Package directory describes the remote agent-directory API: URL templates
// for its listing and detail endpoints and the shapes of their responses.
package directory

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	errs "agentharvest/pkg/errors"
)

// AgentSummary is one item of the listing endpoint's agent array
type AgentSummary struct {
	ID string `json:"agentId"`
}

// ListData is the payload of the listing endpoint
type ListData struct {
	TotalAgents int            `json:"totalAgents"`
	Agents      []AgentSummary `json:"agent"`
}

// ListResponse is the envelope of the listing endpoint
type ListResponse struct {
	Data ListData `json:"data"`
}

// ListURL builds the listing endpoint URL for a zero-based page index
func ListURL(baseURL string, page, pageSize int) string {
	return fmt.Sprintf("%s/agents?page=%d&size=%d", baseURL, page, pageSize)
}

// DetailURL builds the detail endpoint URL for an agent identifier
func DetailURL(baseURL, agentID string) string {
	return fmt.Sprintf("%s/agents/%s", baseURL, url.PathEscape(agentID))
}

// ParseList decodes a listing response body
func ParseList(body []byte) (*ListData, error) {
	var resp ListResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errs.New(errs.ErrorTypeParsing, 0, "failed to parse listing response: %v", err)
	}
	return &resp.Data, nil
}

// AgentIDs extracts the identifiers from a listing page
func (d *ListData) AgentIDs() []string {
	ids := make([]string, 0, len(d.Agents))
	for _, agent := range d.Agents {
		if agent.ID != "" {
			ids = append(ids, agent.ID)
		}
	}
	return ids
}

// MergeDetail turns a detail response body into a self-contained record:
// the object under "data" with the agent identifier merged in. The detail
// payload's shape is otherwise opaque to us.
func MergeDetail(agentID string, body []byte) ([]byte, error) {
	data := gjson.GetBytes(body, "data")
	if !data.Exists() || !data.IsObject() {
		return nil, errs.New(errs.ErrorTypeParsing, 0, "detail response for %s has no data object", agentID)
	}

	record, err := sjson.SetBytes([]byte(data.Raw), "agentId", agentID)
	if err != nil {
		return nil, errs.New(errs.ErrorTypeParsing, 0, "failed to merge id into record for %s: %v", agentID, err)
	}
	return record, nil
}
