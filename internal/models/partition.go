package models

import (
	"encoding/json"
	"maps"
)

// Partition is everything stored for one user: projects, issues and settings.
// Partitions never reference each other.
type Partition struct {
	Projects map[string]*Project `json:"projects"`
	Issues   map[string]*Issue   `json:"issues"`
	Settings Settings            `json:"-"`
}

// NewPartition returns an empty partition with default settings.
func NewPartition() *Partition {
	return &Partition{
		Projects: make(map[string]*Project),
		Issues:   make(map[string]*Issue),
		Settings: DefaultSettings(),
	}
}

// Clone returns a deep copy of the partition.
func (p *Partition) Clone() *Partition {
	c := &Partition{
		Projects: make(map[string]*Project, len(p.Projects)),
		Issues:   make(map[string]*Issue, len(p.Issues)),
		Settings: p.Settings.Clone(),
	}
	for k, v := range p.Projects {
		c.Projects[k] = v.Clone()
	}
	for k, v := range p.Issues {
		c.Issues[k] = v.Clone()
	}
	return c
}

// partitionDoc is the persisted shape: settings fields sit beside projects and issues.
type partitionDoc struct {
	Settings
	Projects map[string]*Project `json:"projects"`
	Issues   map[string]*Issue   `json:"issues"`
}

// MarshalJSON flattens settings into the partition object.
func (p *Partition) MarshalJSON() ([]byte, error) {
	return json.Marshal(partitionDoc{
		Settings: p.Settings,
		Projects: p.Projects,
		Issues:   p.Issues,
	})
}

// UnmarshalJSON reads the flattened form and fills in defaults for missing fields.
func (p *Partition) UnmarshalJSON(data []byte) error {
	doc := partitionDoc{Settings: DefaultSettings()}
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	if doc.Keywords == nil {
		doc.Keywords = []string{}
	}
	if doc.DefaultHours == 0 {
		doc.DefaultHours = DefaultHours
	}
	p.Settings = doc.Settings
	p.Projects = doc.Projects
	p.Issues = doc.Issues
	if p.Projects == nil {
		p.Projects = make(map[string]*Project)
	}
	if p.Issues == nil {
		p.Issues = make(map[string]*Issue)
	}
	// A null entry carries no record.
	maps.DeleteFunc(p.Projects, func(_ string, proj *Project) bool { return proj == nil })
	maps.DeleteFunc(p.Issues, func(_ string, issue *Issue) bool { return issue == nil })
	for name, proj := range p.Projects {
		if proj.Name == "" {
			proj.Name = name
		}
	}
	return nil
}
