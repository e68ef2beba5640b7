package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dyluth/roost/internal/printer"
	"github.com/dyluth/roost/internal/resolver"
	"github.com/dyluth/roost/pkg/store"
)

var (
	teamDescription string
	teamMembers     []string
	teamSupervisor  string
	teamJSON        bool
)

var teamCmd = &cobra.Command{
	Use:   "team",
	Short: "Manage agent teams",
	Long: `Group agent instances into named teams that share a blackboard and
coordinate through the event bus.`,
}

var teamCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a team from existing instances",
	Long: `Create a team. Members are given as --member <instance>:<role> (repeatable);
the optional --supervisor names the member that leads team activities.

Example:
  roost team create builders --member 1a2b3c:lead --member 4d5e6f:coder --supervisor 1a2b3c`,
	Args: cobra.ExactArgs(1),
	RunE: runTeamCreate,
}

var teamListCmd = &cobra.Command{
	Use:   "list",
	Short: "List teams",
	RunE:  runTeamList,
}

var teamShowCmd = &cobra.Command{
	Use:   "show <team>",
	Short: "Show a team's members and blackboard",
	Args:  cobra.ExactArgs(1),
	RunE:  runTeamShow,
}

var teamRmCmd = &cobra.Command{
	Use:   "rm <team>",
	Short: "Remove a team",
	Long: `Remove a team and its blackboard. Member instances are not stopped;
they outlive team membership.`,
	Args: cobra.ExactArgs(1),
	RunE: runTeamRm,
}

var teamStartCmd = &cobra.Command{
	Use:   "start <team> <prompt>",
	Short: "Start a team activity",
	Long: `Start a team activity: the supervisor member is prompted, tasks it
delegates over the bus are dispatched to the addressed members, and their
outcomes are relayed back. Blocks until the activity completes.`,
	Args: cobra.ExactArgs(2),
	RunE: runTeamStart,
}

func init() {
	teamCreateCmd.Flags().StringVarP(&teamDescription, "description", "d", "", "Team description")
	teamCreateCmd.Flags().StringArrayVar(&teamMembers, "member", nil, "Member as <instance>:<role> (repeatable)")
	teamCreateCmd.Flags().StringVar(&teamSupervisor, "supervisor", "", "Instance that supervises team activities")
	teamShowCmd.Flags().BoolVar(&teamJSON, "json", false, "Output in JSON format")

	teamCmd.AddCommand(teamCreateCmd, teamListCmd, teamShowCmd, teamRmCmd, teamStartCmd)
	rootCmd.AddCommand(teamCmd)
}

func runTeamCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	env, cleanup, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	members := make([]store.TeamMember, 0, len(teamMembers))
	for _, spec := range teamMembers {
		ref, role, _ := strings.Cut(spec, ":")
		instanceID, err := resolver.Instance(ctx, env.client, ref)
		if err != nil {
			return err
		}
		instance, err := env.sup.Instance(ctx, instanceID)
		if err != nil {
			return err
		}
		if role == "" {
			role = configuredRole(env, instance.AgentName)
		}
		members = append(members, store.TeamMember{InstanceID: instanceID, Role: role})
	}

	supervisorID := ""
	if teamSupervisor != "" {
		supervisorID, err = resolver.Instance(ctx, env.client, teamSupervisor)
		if err != nil {
			return err
		}
	}

	team, err := env.teams.Create(ctx, args[0], teamDescription, members, supervisorID)
	if err != nil {
		return err
	}
	printer.Success("Created team %s (%s) with %d members\n", team.Name, shortID(team.ID), len(team.Members))
	return nil
}

// configuredRole falls back to the role declared on the agent template.
func configuredRole(env *env, agentName string) string {
	if agent, ok := env.cfg.Agents[agentName]; ok {
		return agent.Role
	}
	return ""
}

func runTeamList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	env, cleanup, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	teams, err := env.teams.List(ctx)
	if err != nil {
		return err
	}
	if len(teams) == 0 {
		fmt.Println("No teams found.")
		return nil
	}

	fmt.Printf("%-10s %-20s %-8s %s\n", "ID", "NAME", "STATUS", "MEMBERS")
	for _, team := range teams {
		fmt.Printf("%-10s %-20s %-8s %d\n", shortID(team.ID), team.Name, team.Status, len(team.Members))
	}
	return nil
}

func runTeamShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	env, cleanup, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	teamID, err := resolver.Team(ctx, env.client, args[0])
	if err != nil {
		return err
	}
	team, err := env.teams.Get(ctx, teamID)
	if err != nil {
		return err
	}

	if teamJSON {
		outputJSON(team)
		return nil
	}

	printer.Printf("Team:   %s (%s)\n", team.Name, shortID(team.ID))
	printer.Printf("Status: %s\n", team.Status)
	if team.Description != "" {
		printer.Printf("About:  %s\n", team.Description)
	}

	printer.Printf("\nMembers:\n")
	for _, member := range team.Members {
		marker := " "
		if member.InstanceID == team.SupervisorID {
			marker = "*"
		}
		role := member.Role
		if role == "" {
			role = "-"
		}
		printer.Printf("  %s %-10s %s\n", marker, shortID(member.InstanceID), role)
	}

	notes, err := env.teams.Notes(ctx, teamID)
	if err != nil {
		return err
	}
	if len(notes) > 0 {
		printer.Printf("\nBlackboard:\n")
		for _, note := range notes {
			printer.Printf("  %-20s v%-4d %s\n", note.Key, note.Version, note.Value)
		}
	}
	return nil
}

func runTeamRm(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	env, cleanup, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	teamID, err := resolver.Team(ctx, env.client, args[0])
	if err != nil {
		return err
	}
	if err := env.teams.Delete(ctx, teamID); err != nil {
		return err
	}
	printer.Success("Removed team %s\n", shortID(teamID))
	return nil
}

func runTeamStart(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	env, cleanup, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	teamID, err := resolver.Team(ctx, env.client, args[0])
	if err != nil {
		return err
	}

	started := time.Now()
	printer.Step("Starting team activity\n")
	if err := env.teams.Start(ctx, teamID, args[1], printEvent, printTaskEvent); err != nil {
		return printer.Error(
			"Team activity failed",
			err.Error(),
			[]string{"Check 'roost events --source team:" + teamID + "' for the task history"},
		)
	}
	printer.Success("Team activity completed in %s\n", formatDuration(time.Since(started)))
	return nil
}

// printTaskEvent renders task delegations and outcomes as the coordination
// loop handles them.
func printTaskEvent(event *store.BusEvent) {
	str := func(key string) string {
		if v, ok := event.Payload[key].(string); ok {
			return v
		}
		return ""
	}
	switch event.Type {
	case "task.delegated":
		printer.Step("task delegated: %s\n", str("task"))
	case "task.completed":
		printer.Success("task completed: %s\n", str("result"))
	case "task.failed":
		printer.Warning("task failed: %s\n", str("error"))
	}
}
