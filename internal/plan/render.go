package plan

import (
	"encoding/json"

	"go.mongodb.org/mongo-driver/bson"
)

// ExtJSON renders a BSON value as relaxed Extended JSON, so ObjectIDs,
// dates and regexes keep their type.
func ExtJSON(v any) (json.RawMessage, error) {
	data, err := bson.MarshalExtJSON(bson.D{{Key: "v", Value: v}}, false, false)
	if err != nil {
		return nil, err
	}
	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, err
	}
	return wrapped["v"], nil
}

// Rendered is a PlannedQuery with its BSON parts in Extended JSON.
type Rendered struct {
	PlanID      string          `json:"planId"`
	RootType    string          `json:"rootType"`
	Mode        Mode            `json:"mode"`
	ExpandPaths []string        `json:"expandPaths"`
	Filter      json.RawMessage `json:"filter,omitempty"`
	Pipeline    json.RawMessage `json:"pipeline,omitempty"`
	Sort        Sort            `json:"sort,omitempty"`
	Page        *Page           `json:"page,omitempty"`
	Projection  *Projection     `json:"projection,omitempty"`
}

// Render converts q for JSON output.
func (q *PlannedQuery) Render() (*Rendered, error) {
	out := &Rendered{
		PlanID:      q.ID.String(),
		RootType:    q.RootType,
		Mode:        q.Mode,
		ExpandPaths: q.ExpandPaths,
		Sort:        q.Sort,
		Page:        q.Page,
		Projection:  q.Projection,
	}
	var err error
	if q.Mode == ModeFilter {
		filter := q.Filter
		if filter == nil {
			filter = bson.D{}
		}
		out.Filter, err = ExtJSON(filter)
	} else {
		out.Pipeline, err = ExtJSON(q.Pipeline)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}
