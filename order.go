package main

import (
	"fmt"
	"sort"
)

// Recipe is a static catalog entry. Ingredients are stored in display
// order but matched as a set.
type Recipe struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Ingredients []string `json:"ingredients"`
}

// Catalog holds the fixed recipe list and the set of valid ingredients.
// Built once at startup and never mutated afterwards.
type Catalog struct {
	Recipes     []Recipe
	Ingredients []string

	valid map[string]bool
}

func newCatalog(recipes []Recipe, ingredients []string) (*Catalog, error) {
	if len(recipes) == 0 {
		return nil, fmt.Errorf("catalog has no recipes")
	}
	if len(ingredients) == 0 {
		return nil, fmt.Errorf("catalog has no ingredients")
	}

	valid := make(map[string]bool, len(ingredients))
	for _, ingredient := range ingredients {
		if ingredient == "" {
			return nil, fmt.Errorf("catalog contains an empty ingredient name")
		}
		if valid[ingredient] {
			return nil, fmt.Errorf("catalog lists ingredient %q twice", ingredient)
		}
		valid[ingredient] = true
	}

	for _, recipe := range recipes {
		if recipe.Name == "" {
			return nil, fmt.Errorf("catalog contains an unnamed recipe")
		}
		if len(recipe.Ingredients) == 0 {
			return nil, fmt.Errorf("recipe %q has no ingredients", recipe.Name)
		}
		seen := make(map[string]bool, len(recipe.Ingredients))
		for _, ingredient := range recipe.Ingredients {
			if !valid[ingredient] {
				return nil, fmt.Errorf("recipe %q requires unknown ingredient %q", recipe.Name, ingredient)
			}
			if seen[ingredient] {
				return nil, fmt.Errorf("recipe %q lists ingredient %q twice", recipe.Name, ingredient)
			}
			seen[ingredient] = true
		}
	}

	return &Catalog{
		Recipes:     recipes,
		Ingredients: ingredients,
		valid:       valid,
	}, nil
}

// Valid reports whether an ingredient identifier is part of the catalog.
func (c *Catalog) Valid(ingredient string) bool {
	return c.valid[ingredient]
}

// defaultCatalog returns the built-in recipe set.
func defaultCatalog() *Catalog {
	catalog, err := newCatalog(
		[]Recipe{
			{
				Name:        "Paturain Pasta",
				Description: "Een heerlijke romige pasta met Paturain roomkaas",
				Ingredients: []string{"pasta", "paturain", "knoflook", "peterselie"},
			},
			{
				Name:        "Paturain Toast",
				Description: "Een smakelijke toast met Paturain roomkaas",
				Ingredients: []string{"brood", "paturain", "tomaat", "basilicum"},
			},
			{
				Name:        "Paturain Salade",
				Description: "Een frisse salade met Paturain roomkaas",
				Ingredients: []string{"sla", "paturain", "komkommer", "radijs"},
			},
		},
		[]string{
			"pasta", "paturain", "knoflook", "peterselie",
			"brood", "tomaat", "basilicum", "sla",
			"komkommer", "radijs", "ui", "paprika",
		},
	)
	if err != nil {
		panic("built-in catalog is invalid: " + err.Error())
	}
	return catalog
}

// OrderStatus tracks the lifecycle of an order. Served and Expired are
// terminal.
type OrderStatus int

const (
	OrderActive OrderStatus = iota
	OrderServed
	OrderExpired
)

// String returns a human-readable order status.
func (s OrderStatus) String() string {
	switch s {
	case OrderActive:
		return "active"
	case OrderServed:
		return "served"
	case OrderExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Urgency is the discrete tier derived from an order's remaining-time
// percentage.
type Urgency int

const (
	UrgencyNormal Urgency = iota
	UrgencyWarning
	UrgencyDanger
)

// String returns a human-readable urgency tier.
func (u Urgency) String() string {
	switch u {
	case UrgencyNormal:
		return "normal"
	case UrgencyWarning:
		return "warning"
	case UrgencyDanger:
		return "danger"
	default:
		return "unknown"
	}
}

// Order is one active customer request.
type Order struct {
	ID        int
	Recipe    Recipe
	Remaining int
	Status    OrderStatus
}

// Percent returns the remaining time as a percentage of the full duration.
func (o *Order) Percent(duration int) int {
	if duration <= 0 {
		return 0
	}
	return o.Remaining * 100 / duration
}

// matchesRecipe reports whether the selection, viewed as a set, is exactly
// the recipe's ingredient set. Subsets and supersets both fail.
func matchesRecipe(selection []string, recipe Recipe) bool {
	if len(selection) != len(recipe.Ingredients) {
		return false
	}

	a := append([]string(nil), selection...)
	b := append([]string(nil), recipe.Ingredients...)
	sort.Strings(a)
	sort.Strings(b)

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
