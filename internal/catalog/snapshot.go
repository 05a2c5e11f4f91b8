package catalog

import "fmt"

// Problems lists integrity issues that would make the snapshot unusable as
// reference data. An empty result means the snapshot can be loaded.
func (s Snapshot) Problems() []string {
	var problems []string
	seen := make(map[string]struct{})
	check := func(kind, id string) {
		if id == "" {
			problems = append(problems, fmt.Sprintf("%s with empty id", kind))
			return
		}
		k := kind + "/" + id
		if _, dup := seen[k]; dup {
			problems = append(problems, fmt.Sprintf("duplicate %s %s", kind, id))
			return
		}
		seen[k] = struct{}{}
	}
	for _, wh := range s.Warehouses {
		check("warehouse", wh.ID)
	}
	for _, v := range s.Vendors {
		check("vendor", v.ID)
	}
	for _, bom := range s.BOMs {
		check("bom", bom.ID)
		codes := make(map[string]struct{}, len(bom.Items))
		for _, item := range bom.Items {
			switch {
			case item.ItemCode == "":
				problems = append(problems, fmt.Sprintf("bom %s: item without code", bom.ID))
				continue
			case item.UOM == "":
				problems = append(problems, fmt.Sprintf("bom %s: item %s without uom", bom.ID, item.ItemCode))
			case item.Rate.IsNegative() || item.AvailableQty.IsNegative():
				problems = append(problems, fmt.Sprintf("bom %s: item %s has negative rate or quantity", bom.ID, item.ItemCode))
			}
			if _, dup := codes[item.ItemCode]; dup {
				problems = append(problems, fmt.Sprintf("bom %s: duplicate item %s", bom.ID, item.ItemCode))
			}
			codes[item.ItemCode] = struct{}{}
		}
	}
	return problems
}

// ItemCount returns the number of BOM items across every BOM.
func (s Snapshot) ItemCount() int {
	n := 0
	for _, bom := range s.BOMs {
		n += len(bom.Items)
	}
	return n
}
