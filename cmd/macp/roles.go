package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var rolesQuestion string

// rolesCmd lists the available debate personas.
var rolesCmd = &cobra.Command{
	Use:   "roles",
	Short: "List debate personas, or recommend some for a question",
	RunE:  runRoles,
}

func init() {
	rolesCmd.Flags().StringVarP(&rolesQuestion, "question", "q", "", "Recommend personas for this question")
}

func runRoles(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	library, err := loadRoles(cfg)
	if err != nil {
		return err
	}

	if rolesQuestion != "" {
		tags := library.DetectTags(rolesQuestion)
		if len(tags) == 0 {
			fmt.Println("no topic tags detected; any persona works")
			return nil
		}
		fmt.Printf("detected tags: %s\n", strings.Join(tags, ", "))
		recommended := library.RolesForTags(tags)
		if len(recommended) == 0 {
			fmt.Println("no matching personas")
			return nil
		}
		fmt.Printf("recommended:   %s\n", strings.Join(recommended, ", "))
		return nil
	}

	for _, name := range library.Names() {
		role, _ := library.Resolve(name)
		line := name
		if role.Stance != "" {
			line += " (" + role.Stance + ")"
		}
		if len(role.Aliases) > 0 {
			line += "  aliases: " + strings.Join(role.Aliases, ", ")
		}
		fmt.Println(line)
	}
	return nil
}
