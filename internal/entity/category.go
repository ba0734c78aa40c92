package entity

// Category is a node in the two-level taxonomy. ParentID == nil marks a
// top-level category; a non-nil ParentID marks a subcategory of that parent.
type Category struct {
	ID       int32  `json:"id"`
	Name     string `json:"name"`
	ParentID *int32 `json:"parent_id,omitempty"`
}

// IsRoot reports whether the category is top-level.
func (c *Category) IsRoot() bool { return c.ParentID == nil }

// TaxonomyNode is one top-level category with its known subcategory names,
// in the shape the parsing client's taxonomy hint expects.
type TaxonomyNode struct {
	Name          string   `json:"name"`
	Subcategories []string `json:"subcategories"`
}
