package model

import "strings"

type Category string

const (
	CategoryTechnology Category = "TECHNOLOGY"
	CategoryFinance    Category = "FINANCE"
	CategoryHealthcare Category = "HEALTHCARE"
	CategoryEnergy     Category = "ENERGY"
	CategoryConsumer   Category = "CONSUMER"
	CategoryIndustrial Category = "INDUSTRIAL"
	CategoryMaterials  Category = "MATERIALS"
	CategoryUtilities  Category = "UTILITIES"
	CategoryRealEstate Category = "REAL_ESTATE"
	CategoryBusiness   Category = "BUSINESS"
	CategoryCustom     Category = "CUSTOM"
)

var categoryNames = map[Category]string{
	CategoryTechnology: "Technology",
	CategoryFinance:    "Finance",
	CategoryHealthcare: "Healthcare",
	CategoryEnergy:     "Energy",
	CategoryConsumer:   "Consumer Goods",
	CategoryIndustrial: "Industrial",
	CategoryMaterials:  "Materials",
	CategoryUtilities:  "Utilities",
	CategoryRealEstate: "Real Estate",
	CategoryBusiness:   "Business",
	CategoryCustom:     "Custom",
}

// ParseCategory accepts any casing and falls back to CUSTOM for unknown names.
func ParseCategory(s string) Category {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := categoryNames[c]; ok {
		return c
	}
	return CategoryCustom
}

func (c Category) DisplayName() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return string(c)
}
