package domain

type Product struct {
	ID       string
	Name     string
	Category string
	Rating   float64
}
