// Package importer turns merchant menu documents into catalog meals. Plain
// text and PDF menus are accepted; imports run asynchronously through the
// SQLite job queue so a slow PDF never blocks an admin request.
package importer

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/mealwise/mealwise/internal/recommend"
)

// ExtractPDFText pulls the plain text out of a PDF document.
func ExtractPDFText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("reading text: %w", err)
	}
	return buf.String(), nil
}

// ParseMenu parses pipe-delimited menu lines into meals:
//
//	name | calories | price | protein | fat | carbs | distance_km
//
// The first three fields are required; macros and distance default to zero.
// Blank lines and lines starting with # are skipped. Meal IDs are left empty
// for the caller to assign.
func ParseMenu(merchant, text string) ([]recommend.Meal, error) {
	var meals []recommend.Meal
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		meal, err := parseLine(merchant, line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		meals = append(meals, meal)
	}
	if len(meals) == 0 {
		return nil, fmt.Errorf("no meal entries found")
	}
	return meals, nil
}

func parseLine(merchant, line string) (recommend.Meal, error) {
	fields := strings.Split(line, "|")
	if len(fields) < 3 {
		return recommend.Meal{}, fmt.Errorf("expected at least name|calories|price, got %d fields", len(fields))
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	name := fields[0]
	if name == "" {
		return recommend.Meal{}, fmt.Errorf("empty meal name")
	}

	meal := recommend.Meal{Name: name, Merchant: merchant}
	var err error
	if meal.Calories, err = strconv.Atoi(fields[1]); err != nil {
		return recommend.Meal{}, fmt.Errorf("calories %q: %w", fields[1], err)
	}
	if meal.Price, err = strconv.Atoi(fields[2]); err != nil {
		return recommend.Meal{}, fmt.Errorf("price %q: %w", fields[2], err)
	}

	if len(fields) > 3 && fields[3] != "" {
		if meal.Macros.Protein, err = strconv.Atoi(fields[3]); err != nil {
			return recommend.Meal{}, fmt.Errorf("protein %q: %w", fields[3], err)
		}
	}
	if len(fields) > 4 && fields[4] != "" {
		if meal.Macros.Fat, err = strconv.Atoi(fields[4]); err != nil {
			return recommend.Meal{}, fmt.Errorf("fat %q: %w", fields[4], err)
		}
	}
	if len(fields) > 5 && fields[5] != "" {
		if meal.Macros.Carbs, err = strconv.Atoi(fields[5]); err != nil {
			return recommend.Meal{}, fmt.Errorf("carbs %q: %w", fields[5], err)
		}
	}
	if len(fields) > 6 && fields[6] != "" {
		if meal.DistanceKm, err = strconv.ParseFloat(fields[6], 64); err != nil {
			return recommend.Meal{}, fmt.Errorf("distance %q: %w", fields[6], err)
		}
	}
	return meal, nil
}
