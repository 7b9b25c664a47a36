// Package utils provides small, generic helper functions used across
// different layers of the application. These utilities are independent
// of domain or business logic.
package utils

import "fmt"

// FormatCents renders an amount of minor currency units as a dollar string.
//
// Example:
//
//	utils.FormatCents(500)   // "$5.00"
//	utils.FormatCents(-1250) // "-$12.50"
//	utils.FormatCents(7)     // "$0.07"
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}
