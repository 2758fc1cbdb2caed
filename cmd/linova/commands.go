package main

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"linova-go/internal/deeplink"
	"linova-go/internal/remote"
	"linova-go/internal/syncer"

	"github.com/spf13/cobra"
)

var signUpCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account and sync it",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")
		name, _ := cmd.Flags().GetString("name")
		rt, err := openRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()
		meta := remote.UserMetadata{Name: name, FullName: name}
		if _, err := rt.client.SignUp(cmd.Context(), email, password, meta); err != nil {
			return err
		}
		return syncAndPrint(cmd, rt)
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with email and password",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")
		rt, err := openRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()
		if _, err := rt.client.SignIn(cmd.Context(), email, password); err != nil {
			return err
		}
		return syncAndPrint(cmd, rt)
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and drop this user's cached data",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()
		ctrl, _, err := rt.sync(cmd.Context())
		if err != nil {
			return err
		}
		defer ctrl.Stop()
		if err := rt.client.SignOut(cmd.Context()); err != nil {
			return err
		}
		state, err := waitFor(cmd.Context(), ctrl, func(s syncer.State) bool {
			return s.Phase == syncer.PhaseLive && s.UserID == ""
		})
		if err != nil {
			return err
		}
		printState(cmd.OutOrStdout(), state)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Sync once and print progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()
		return syncAndPrint(cmd, rt)
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stay connected and print progress whenever it changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()
		ctrl, state, err := rt.sync(cmd.Context())
		if err != nil {
			return err
		}
		defer ctrl.Stop()
		out := cmd.OutOrStdout()
		printState(out, state)

		var mu sync.Mutex
		last := state.Summary
		unsubscribe := ctrl.OnChange(func(s syncer.State) {
			mu.Lock()
			defer mu.Unlock()
			if s.Phase != syncer.PhaseLive || s.Summary == last {
				return
			}
			last = s.Summary
			fmt.Fprintln(out, "--")
			printState(out, s)
		})
		defer unsubscribe()
		<-cmd.Context().Done()
		return nil
	},
}

var lessonCmd = &cobra.Command{
	Use:   "lesson <lesson-id>",
	Short: "Record a lesson result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result := syncer.LessonResult{LessonID: args[0], Completed: true}
		if cmd.Flags().Changed("score") {
			score, _ := cmd.Flags().GetFloat64("score")
			result.Score = &score
		}
		if cmd.Flags().Changed("xp") {
			xp, _ := cmd.Flags().GetFloat64("xp")
			result.XP = &xp
		}
		result.Watched, _ = cmd.Flags().GetBool("watched")
		return withController(cmd, func(ctrl *syncer.Controller) error {
			return ctrl.SubmitLesson(cmd.Context(), result)
		})
	},
}

var moduleCmd = &cobra.Command{
	Use:   "module <module-id>",
	Short: "Make a module the current one, or record its assessment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		moduleID := args[0]
		return withController(cmd, func(ctrl *syncer.Controller) error {
			if !cmd.Flags().Changed("passed") {
				return ctrl.SelectModule(cmd.Context(), moduleID)
			}
			passed, _ := cmd.Flags().GetBool("passed")
			result := syncer.AssessmentResult{ModuleID: moduleID, Passed: passed}
			if cmd.Flags().Changed("score") {
				score, _ := cmd.Flags().GetFloat64("score")
				result.Score = &score
			}
			return ctrl.RecordAssessment(cmd.Context(), result)
		})
	},
}

var resetPasswordCmd = &cobra.Command{
	Use:   "reset-password",
	Short: "Request a password recovery link",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		rt, err := openRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()
		if err := rt.client.ResetPasswordForEmail(cmd.Context(), email, rt.cfg.RedirectTo); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "If the account exists, a recovery link is on its way.")
		return nil
	},
}

var openLinkCmd = &cobra.Command{
	Use:   "open-link <url>",
	Short: "Follow a password recovery link and set a new password",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, _ := cmd.Flags().GetString("new-password")
		if strings.TrimSpace(password) == "" {
			return errors.New("--new-password is required")
		}
		rt, err := openRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()
		ctrl := rt.controller()
		defer ctrl.Stop()
		if !ctrl.HandleDeepLink(args[0]) {
			return errors.New("link does not carry a recovery code")
		}
		codes := make(chan string, 1)
		ctrl.AttachNavigator(deeplink.NavigatorFunc(func(code string) { codes <- code }))
		code := <-codes

		if _, err := rt.client.ExchangeRecoveryCode(cmd.Context(), code); err != nil {
			return err
		}
		if _, err := rt.client.UpdateUser(cmd.Context(), remote.UserUpdate{Password: &password}); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Password updated.")
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{signUpCmd, loginCmd} {
		c.Flags().String("email", "", "account email")
		c.Flags().String("password", "", "account password")
		_ = c.MarkFlagRequired("email")
		_ = c.MarkFlagRequired("password")
	}
	signUpCmd.Flags().String("name", "", "display name")
	resetPasswordCmd.Flags().String("email", "", "account email")
	_ = resetPasswordCmd.MarkFlagRequired("email")
	openLinkCmd.Flags().String("new-password", "", "password to set")

	lessonCmd.Flags().Float64("score", 0, "score between 0 and 1")
	lessonCmd.Flags().Float64("xp", 0, "experience points earned")
	lessonCmd.Flags().Bool("watched", false, "the lesson video was watched")
	moduleCmd.Flags().Bool("passed", false, "record an assessment with this outcome")
	moduleCmd.Flags().Float64("score", 0, "assessment score")
}

func syncAndPrint(cmd *cobra.Command, rt *runtime) error {
	ctrl, state, err := rt.sync(cmd.Context())
	if err != nil {
		return err
	}
	defer ctrl.Stop()
	printState(cmd.OutOrStdout(), state)
	return nil
}

func withController(cmd *cobra.Command, fn func(*syncer.Controller) error) error {
	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()
	ctrl, _, err := rt.sync(cmd.Context())
	if err != nil {
		return err
	}
	defer ctrl.Stop()
	if err := fn(ctrl); err != nil {
		return err
	}
	printState(cmd.OutOrStdout(), ctrl.Snapshot())
	return nil
}
