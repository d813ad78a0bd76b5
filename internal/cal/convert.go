package cal

import (
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v2"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/network/armnetwork"
)

// skuFromARM converts one armcompute.ResourceSKU into a SkuInfo,
// following the teacher's pointer-unwrapping style (nil-checked field
// by field rather than a generic reflection helper -- see
// provider/azure/instancetype.go's SKU conversion).
func skuFromARM(s *armcompute.ResourceSKU) SkuInfo {
	info := SkuInfo{Capabilities: map[string]string{}}
	if s.Name != nil {
		info.Name = *s.Name
	}
	if s.Family != nil {
		info.Family = *s.Family
	}
	for _, c := range s.Capabilities {
		if c.Name == nil || c.Value == nil {
			continue
		}
		info.Capabilities[*c.Name] = *c.Value
	}
	for _, r := range s.Restrictions {
		restriction := SkuRestriction{}
		if r.Type != nil {
			restriction.Type = string(*r.Type)
		}
		if r.ReasonCode != nil {
			restriction.ReasonCode = string(*r.ReasonCode)
		}
		if r.RestrictionInfo != nil {
			for _, z := range r.RestrictionInfo.Zones {
				if z != nil {
					restriction.Zones = append(restriction.Zones, *z)
				}
			}
		}
		info.Restrictions = append(info.Restrictions, restriction)
	}
	for _, cap := range s.Capabilities {
		if cap.Name != nil && *cap.Name == "Deprecated" && cap.Value != nil && *cap.Value == "True" {
			info.Deprecated = true
		}
	}
	return info
}

// subnetFromARM converts one armnetwork.Subnet into a SubnetInfo.
func subnetFromARM(s *armnetwork.Subnet) SubnetInfo {
	info := SubnetInfo{}
	if s.Name != nil {
		info.Name = *s.Name
	}
	if s.Properties == nil {
		return info
	}
	if s.Properties.AddressPrefix != nil {
		info.AddressPrefix = *s.Properties.AddressPrefix
	}
	for _, d := range s.Properties.Delegations {
		if d.Properties != nil && d.Properties.ServiceName != nil {
			info.Delegations = append(info.Delegations, *d.Properties.ServiceName)
		}
	}
	info.UsedIPConfigCount = len(s.Properties.IPConfigurations)
	return info
}
