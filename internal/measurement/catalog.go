package measurement

import (
	"context"
	"encoding/json"
)

// Catalog is the set of device data types a namespace exposes for a project.
type Catalog struct {
	Namespace string
	Entries   []map[string]any
}

// DataTypes fetches the all-namespace data type list and keeps the entries of this Retriever's
// namespace (only enabled ones when the namespace requires it). A non-2xx response is an
// *mdh.StatusError; no matching entries is an empty, non-nil Catalog.
func (r *Retriever) DataTypes(ctx context.Context, token, projectID string) (*Catalog, error) {
	resp, err := r.client.Get(ctx, token, r.ns.dataTypesPath(projectID), nil, true)
	if err != nil {
		return nil, err
	}
	var all []map[string]any
	if err := resp.Decode(&all); err != nil {
		return nil, err
	}

	c := &Catalog{Namespace: r.ns.Name, Entries: make([]map[string]any, 0)}
	for _, e := range all {
		if ns, _ := e["namespace"].(string); ns != r.ns.Name {
			continue
		}
		if r.ns.RequireEnabled {
			if enabled, _ := e["enabled"].(bool); !enabled {
				continue
			}
		}
		c.Entries = append(c.Entries, e)
	}
	return c, nil
}

// JSON renders the entries with two-space indentation; an empty catalog renders "[]".
func (c *Catalog) JSON() (string, error) {
	b, err := json.MarshalIndent(c.Entries, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Types returns the "type" field of each entry, in catalog order.
func (c *Catalog) Types() []string {
	out := make([]string, 0, len(c.Entries))
	for _, e := range c.Entries {
		if t, ok := e["type"].(string); ok {
			out = append(out, t)
		}
	}
	return out
}

// Coverage reports, for every abstract measurement name of ns, whether its device type is in the catalog.
// Unsupported names are always false.
func (c *Catalog) Coverage(ns Namespace) map[string]bool {
	present := make(map[string]bool, len(c.Entries))
	for _, t := range c.Types() {
		present[t] = true
	}
	out := make(map[string]bool, len(ns.Types))
	for name := range ns.Types {
		t, ok := ns.DeviceType(name)
		out[name] = ok && present[t]
	}
	return out
}
