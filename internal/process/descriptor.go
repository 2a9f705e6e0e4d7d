package process

import "github.com/tendant/adm-engine-worker/pkg/schema"

// Descriptor identifies the worker to the orchestration side.
type Descriptor struct {
	Name             string
	ShortDescription string
	Description      string
	Version          string
}

func DefaultDescriptor(version string) Descriptor {
	return Descriptor{
		Name:             "ADM Engine worker",
		ShortDescription: "Worker to rebalance audio loudness",
		Description:      "This worker rebalances audio loudness.",
		Version:          version,
	}
}

func (d Descriptor) Info() *schema.WorkerInfo {
	return &schema.WorkerInfo{Name: d.Name, Version: d.Version}
}
