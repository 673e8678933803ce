package odata

import (
	"encoding/xml"
	"errors"
	"fmt"
	"sort"
)

type Property struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type NavigationProperty struct {
	Name         string `json:"name"`
	Relationship string `json:"relationship"`
	ToRole       string `json:"to_role"`
}

type EntityType struct {
	Name                 string
	Properties           []Property
	NavigationProperties []NavigationProperty
}

type AssociationEnd struct {
	Role         string `json:"role"`
	EntityType   string `json:"entity_type"`
	Multiplicity string `json:"multiplicity"`
}

type Association struct {
	Name string
	Ends []AssociationEnd
}

// NavigationRef is one entry of the "Entity.Nav" lookup index.
type NavigationRef struct {
	FromEntity   string `json:"from_entity"`
	NavProperty  string `json:"nav_property"`
	Relationship string `json:"relationship"`
	ToRole       string `json:"to_role"`
}

// Metadata is the discovered shape of an OData v2 service.
type Metadata struct {
	EntityTypes     map[string]*EntityType
	Associations    map[string]*Association
	NavigationIndex map[string]NavigationRef
}

// EntitySummary is the compact per-entity view handed to the model.
type EntitySummary struct {
	NavigationProperties []string `json:"navigation_properties"`
	PropertyCount        int      `json:"property_count"`
}

// EDMX elements are matched on local name so both the 2007/06 edmx and the
// 2008/09 edm namespaces used by SAP Gateway decode.
type edmxDocument struct {
	XMLName xml.Name    `xml:"Edmx"`
	Schemas []edmSchema `xml:"DataServices>Schema"`
}

type edmSchema struct {
	EntityTypes []struct {
		Name       string `xml:"Name,attr"`
		Properties []struct {
			Name string `xml:"Name,attr"`
			Type string `xml:"Type,attr"`
		} `xml:"Property"`
		NavigationProperties []struct {
			Name         string `xml:"Name,attr"`
			Relationship string `xml:"Relationship,attr"`
			ToRole       string `xml:"ToRole,attr"`
		} `xml:"NavigationProperty"`
	} `xml:"EntityType"`
	Associations []struct {
		Name string `xml:"Name,attr"`
		Ends []struct {
			Role         string `xml:"Role,attr"`
			Type         string `xml:"Type,attr"`
			Multiplicity string `xml:"Multiplicity,attr"`
		} `xml:"End"`
	} `xml:"Association"`
}

// ParseMetadata builds entity, association and navigation lookups from a
// $metadata document.
func ParseMetadata(data []byte) (*Metadata, error) {
	var doc edmxDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("odata: parse metadata: %w", err)
	}
	if len(doc.Schemas) == 0 {
		return nil, errors.New("odata: parse metadata: no schema found")
	}

	md := &Metadata{
		EntityTypes:     map[string]*EntityType{},
		Associations:    map[string]*Association{},
		NavigationIndex: map[string]NavigationRef{},
	}
	for _, schema := range doc.Schemas {
		for _, et := range schema.EntityTypes {
			entity := &EntityType{
				Name:                 et.Name,
				Properties:           make([]Property, 0, len(et.Properties)),
				NavigationProperties: make([]NavigationProperty, 0, len(et.NavigationProperties)),
			}
			for _, p := range et.Properties {
				entity.Properties = append(entity.Properties, Property{Name: p.Name, Type: p.Type})
			}
			for _, np := range et.NavigationProperties {
				entity.NavigationProperties = append(entity.NavigationProperties, NavigationProperty{
					Name:         np.Name,
					Relationship: np.Relationship,
					ToRole:       np.ToRole,
				})
				md.NavigationIndex[et.Name+"."+np.Name] = NavigationRef{
					FromEntity:   et.Name,
					NavProperty:  np.Name,
					Relationship: np.Relationship,
					ToRole:       np.ToRole,
				}
			}
			md.EntityTypes[et.Name] = entity
		}
		for _, as := range schema.Associations {
			assoc := &Association{Name: as.Name}
			for _, end := range as.Ends {
				assoc.Ends = append(assoc.Ends, AssociationEnd{
					Role:         end.Role,
					EntityType:   end.Type,
					Multiplicity: end.Multiplicity,
				})
			}
			md.Associations[as.Name] = assoc
		}
	}
	return md, nil
}

// NavigationProperties returns the navigation properties of entity, nil if unknown.
func (m *Metadata) NavigationProperties(entity string) []NavigationProperty {
	if et, ok := m.EntityTypes[entity]; ok {
		return et.NavigationProperties
	}
	return nil
}

// Properties returns the structural properties of entity, nil if unknown.
func (m *Metadata) Properties(entity string) []Property {
	if et, ok := m.EntityTypes[entity]; ok {
		return et.Properties
	}
	return nil
}

// EntityNames lists discovered entity types in sorted order.
func (m *Metadata) EntityNames() []string {
	names := make([]string, 0, len(m.EntityTypes))
	for name := range m.EntityTypes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Metadata) Summary() map[string]EntitySummary {
	out := make(map[string]EntitySummary, len(m.EntityTypes))
	for name, et := range m.EntityTypes {
		navs := make([]string, 0, len(et.NavigationProperties))
		for _, np := range et.NavigationProperties {
			navs = append(navs, np.Name)
		}
		out[name] = EntitySummary{NavigationProperties: navs, PropertyCount: len(et.Properties)}
	}
	return out
}
