package entities

import "strings"

// District is the agro-climatic profile of a Madhya Pradesh district.
type District struct {
	Name       string   `json:"name"`
	Region     string   `json:"region"`
	SoilType   string   `json:"soilType"`
	MajorCrops []string `json:"majorCrops"`
}

// Districts lists the districts the advisory prompts know about.
var Districts = []District{
	{Name: "Sehore", Region: "Malwa", SoilType: "Deep Black Soil", MajorCrops: []string{"Soybean", "Wheat", "Gram"}},
	{Name: "Indore", Region: "Malwa", SoilType: "Medium Black Soil", MajorCrops: []string{"Potato", "Soybean", "Wheat"}},
	{Name: "Jabalpur", Region: "Mahakoshal", SoilType: "Mixed Red & Black", MajorCrops: []string{"Rice", "Wheat", "Peas"}},
	{Name: "Gwalior", Region: "Gwalior-Chambal", SoilType: "Alluvial Soil", MajorCrops: []string{"Mustard", "Wheat", "Bajra"}},
	{Name: "Bhopal", Region: "Malwa", SoilType: "Black Soil", MajorCrops: []string{"Wheat", "Soybean", "Pulses"}},
	{Name: "Ujjain", Region: "Malwa", SoilType: "Black Soil", MajorCrops: []string{"Soybean", "Wheat", "Gram"}},
	{Name: "Rewa", Region: "Vindhya", SoilType: "Mixed Red & Yellow", MajorCrops: []string{"Rice", "Wheat", "Linseed"}},
	{Name: "Sagar", Region: "Bundelkhand", SoilType: "Mixed Red & Black", MajorCrops: []string{"Soybean", "Wheat", "Gram"}},
	{Name: "Tikamgarh", Region: "Bundelkhand", SoilType: "Red Soil", MajorCrops: []string{"Groundnut", "Soybean", "Wheat"}},
	{Name: "Chhatarpur", Region: "Bundelkhand", SoilType: "Mixed Red & Black", MajorCrops: []string{"Mustard", "Wheat", "Gram"}},
	{Name: "Hoshangabad", Region: "Malwa", SoilType: "Alluvial/Black", MajorCrops: []string{"Wheat", "Soybean", "Moong"}},
	{Name: "Vidisha", Region: "Malwa", SoilType: "Black Soil", MajorCrops: []string{"Wheat", "Gram", "Soybean"}},
	{Name: "Raisen", Region: "Malwa", SoilType: "Black Soil", MajorCrops: []string{"Wheat", "Soybean", "Gram"}},
	{Name: "Dewas", Region: "Malwa", SoilType: "Deep Black Soil", MajorCrops: []string{"Soybean", "Wheat", "Potato"}},
	{Name: "Dhar", Region: "Malwa", SoilType: "Medium Black Soil", MajorCrops: []string{"Cotton", "Soybean", "Maize"}},
}

// LookupDistrict finds a district by name, ignoring case.
func LookupDistrict(name string) (District, bool) {
	name = strings.TrimSpace(name)
	for _, d := range Districts {
		if strings.EqualFold(d.Name, name) {
			return d, true
		}
	}
	return District{}, false
}
