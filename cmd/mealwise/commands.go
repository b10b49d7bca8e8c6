package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mealwise/mealwise/internal/config"
)

// --- targets ---

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "Show daily health targets computed from the profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/targets")
		if err != nil {
			return err
		}

		var targets struct {
			BMR           int `json:"bmr"`
			TDEE          int `json:"tdee"`
			DailyCalories int `json:"daily_calories"`
			Macros        struct {
				Protein int `json:"protein"`
				Carbs   int `json:"carbs"`
				Fat     int `json:"fat"`
			} `json:"macros"`
		}
		if err := decodeJSON(resp, &targets); err != nil {
			return err
		}

		printStatus("BMR", "%d kcal", targets.BMR)
		printStatus("TDEE", "%d kcal", targets.TDEE)
		printStatus("Daily goal", "%d kcal", targets.DailyCalories)
		printStatus("Macros", "%dg protein / %dg carbs / %dg fat",
			targets.Macros.Protein, targets.Macros.Carbs, targets.Macros.Fat)
		return nil
	},
}

// --- profile ---

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage the physiological profile",
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current profile as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/profile")
		if err != nil {
			return err
		}

		var profile any
		if err := decodeJSON(resp, &profile); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(profile)
	},
}

// profileValue converts a CLI string into the JSON type the profile field
// expects. Numeric fields are sent as numbers, everything else as a string.
func profileValue(key, value string) any {
	switch key {
	case "age":
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	case "height", "weight":
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return value
}

var profileSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a profile field (gender, age, height, weight, activity_level)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		body := map[string]any{key: profileValue(key, value)}
		resp, err := client.patch(cmd.Context(), "/profile", body)
		if err != nil {
			return err
		}

		var updated any
		if err := decodeJSON(resp, &updated); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileSetCmd)
}

// --- stats ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show today's tracking stats",
	RunE: func(cmd *cobra.Command, args []string) error {
		water, _ := cmd.Flags().GetInt("water")
		steps, _ := cmd.Flags().GetInt("steps")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		if water > 0 {
			resp, err := client.post(cmd.Context(), "/stats/water", map[string]int{"ml": water})
			if err != nil {
				return err
			}
			var ack map[string]string
			if err := decodeJSON(resp, &ack); err != nil {
				return err
			}
			printSuccess("Recorded %d ml of water", water)
		}
		if steps > 0 {
			resp, err := client.post(cmd.Context(), "/stats/steps", map[string]int{"steps": steps})
			if err != nil {
				return err
			}
			var ack map[string]string
			if err := decodeJSON(resp, &ack); err != nil {
				return err
			}
			printSuccess("Recorded %d steps", steps)
		}

		resp, err := client.get(cmd.Context(), "/stats")
		if err != nil {
			return err
		}

		var stats struct {
			Day             string `json:"day"`
			CaloriesCurrent int    `json:"calories_current"`
			CaloriesTarget  int    `json:"calories_target"`
			StepsCurrent    int    `json:"steps_current"`
			StepsTarget     int    `json:"steps_target"`
			WaterCurrent    int    `json:"water_current"`
			WaterTarget     int    `json:"water_target"`
		}
		if err := decodeJSON(resp, &stats); err != nil {
			return err
		}

		printStatus("Day", "%s", stats.Day)
		printStatus("Calories", "%d / %d kcal", stats.CaloriesCurrent, stats.CaloriesTarget)
		printStatus("Steps", "%d / %d", stats.StepsCurrent, stats.StepsTarget)
		printStatus("Water", "%d / %d ml", stats.WaterCurrent, stats.WaterTarget)
		return nil
	},
}

func init() {
	statsCmd.Flags().Int("water", 0, "record water intake in ml before showing stats")
	statsCmd.Flags().Int("steps", 0, "record steps before showing stats")
}

// --- log ---

var logCmd = &cobra.Command{
	Use:   "log <name> <calories>",
	Short: "Log a food item for today",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		calories, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("calories must be a number: %w", err)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/log", map[string]any{
			"name":     name,
			"calories": calories,
			"source":   "cli",
		})
		if err != nil {
			return err
		}

		var entry struct {
			Name     string `json:"name"`
			Calories int    `json:"calories"`
		}
		if err := decodeJSON(resp, &entry); err != nil {
			return err
		}

		printSuccess("Logged %s (%d kcal)", entry.Name, entry.Calories)
		return nil
	},
}

// --- recommend ---

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Show meal recommendations for the remaining budget",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/recommendations")
		if err != nil {
			return err
		}

		var result struct {
			RemainingBudget int `json:"remaining_budget"`
			Meals           []struct {
				Name        string  `json:"name"`
				Merchant    string  `json:"merchant"`
				Calories    int     `json:"calories"`
				Price       int     `json:"price"`
				DistanceKm  float64 `json:"distance"`
				HighProtein bool    `json:"high_protein"`
			} `json:"meals"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printStatus("Remaining budget", "%d kcal", result.RemainingBudget)
		if len(result.Meals) == 0 {
			fmt.Println("No meals match the current filters.")
			return nil
		}

		meals := result.Meals
		if limit > 0 && len(meals) > limit {
			meals = meals[:limit]
		}
		for i, m := range meals {
			badge := ""
			if m.HighProtein {
				badge = " " + colorize(colorGreen, "[high protein]")
			}
			fmt.Printf("%s %s (%s)%s\n",
				colorize(colorBold, fmt.Sprintf("%d.", i+1)), m.Name, m.Merchant, badge)
			fmt.Printf("   %d kcal · $%d · %.1f km\n", m.Calories, m.Price, m.DistanceKm)
		}
		return nil
	},
}

func init() {
	recommendCmd.Flags().Int("limit", 5, "maximum number of results")
}

// --- meals (admin) ---

var mealsCmd = &cobra.Command{
	Use:   "meals",
	Short: "Manage the meal catalog (requires admin token)",
}

var mealsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all catalog meals",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/admin/meals")
		if err != nil {
			return err
		}

		var meals []struct {
			ID       string `json:"id"`
			Name     string `json:"name"`
			Merchant string `json:"merchant"`
			Calories int    `json:"calories"`
			Price    int    `json:"price"`
		}
		if err := decodeJSON(resp, &meals); err != nil {
			return err
		}

		if len(meals) == 0 {
			fmt.Println("Catalog is empty.")
			return nil
		}
		for _, m := range meals {
			fmt.Printf("%s  %s (%s)  %d kcal  $%d\n",
				colorize(colorCyan, m.ID[:8]), m.Name, m.Merchant, m.Calories, m.Price)
		}
		return nil
	},
}

var mealsAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a meal to the catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		merchant, _ := cmd.Flags().GetString("merchant")
		calories, _ := cmd.Flags().GetInt("calories")
		price, _ := cmd.Flags().GetInt("price")
		distance, _ := cmd.Flags().GetFloat64("distance")
		protein, _ := cmd.Flags().GetInt("protein")
		fat, _ := cmd.Flags().GetInt("fat")
		carbs, _ := cmd.Flags().GetInt("carbs")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		body := map[string]any{
			"name":     args[0],
			"merchant": merchant,
			"calories": calories,
			"price":    price,
			"distance": distance,
			"macros": map[string]int{
				"protein": protein,
				"fat":     fat,
				"carbs":   carbs,
			},
		}
		resp, err := client.post(cmd.Context(), "/admin/meals", body)
		if err != nil {
			return err
		}

		var created struct {
			ID string `json:"id"`
		}
		if err := decodeJSON(resp, &created); err != nil {
			return err
		}

		printSuccess("Added meal %s", created.ID)
		return nil
	},
}

func init() {
	mealsAddCmd.Flags().String("merchant", "", "merchant name")
	mealsAddCmd.Flags().Int("calories", 0, "calories per serving")
	mealsAddCmd.Flags().Int("price", 0, "price")
	mealsAddCmd.Flags().Float64("distance", 0, "distance in km")
	mealsAddCmd.Flags().Int("protein", 0, "protein in grams")
	mealsAddCmd.Flags().Int("fat", 0, "fat in grams")
	mealsAddCmd.Flags().Int("carbs", 0, "carbs in grams")
	mealsCmd.AddCommand(mealsListCmd)
	mealsCmd.AddCommand(mealsAddCmd)
}

// --- menu ---

var menuCmd = &cobra.Command{
	Use:   "menu",
	Short: "Import merchant menus (requires admin token)",
}

var menuImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Queue a menu file (text or PDF) for import",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		merchant, _ := cmd.Flags().GetString("merchant")
		if merchant == "" {
			return fmt.Errorf("--merchant is required")
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}

		format := "text"
		content := string(data)
		if strings.EqualFold(filepath.Ext(args[0]), ".pdf") {
			format = "pdf"
			content = base64.StdEncoding.EncodeToString(data)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/admin/menus", map[string]string{
			"merchant": merchant,
			"format":   format,
			"content":  content,
		})
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Queued menu %s", result["id"])
		return nil
	},
}

func init() {
	menuImportCmd.Flags().String("merchant", "", "merchant the menu belongs to")
	menuCmd.AddCommand(menuImportCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
