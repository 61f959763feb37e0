package commands

import (
	"fmt"
	"strconv"

	"bitwise74/media-api/internal/model"
	"bitwise74/media-api/internal/service"

	"github.com/spf13/cobra"
)

var skipContentHooks bool

var protectCmd = &cobra.Command{
	Use:   "protect <id>...",
	Short: "Move media into the protected tree",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setRestricted(cmd, args, true)
	},
}

var unprotectCmd = &cobra.Command{
	Use:   "unprotect <id>...",
	Short: "Move media back to its public location",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setRestricted(cmd, args, false)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <id>",
	Short: "Show the restriction state of a media item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		var f model.File
		if err := deps.DB.WithContext(cmd.Context()).Where("id = ?", id).First(&f).Error; err != nil {
			return fmt.Errorf("media %d: %w", id, err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "id:          %d\n", f.ID)
		fmt.Fprintf(out, "restricted:  %t\n", f.Restricted)
		fmt.Fprintf(out, "path:        %s\n", f.StoragePath)
		fmt.Fprintf(out, "exists:      %t\n", deps.Store.Exists(cmd.Context(), f.StoragePath))
		fmt.Fprintf(out, "url:         %s\n", deps.URLs.MediaURL(&f))
		fmt.Fprintf(out, "used in:     %v\n", []uint(f.UsedIn))
		fmt.Fprintf(out, "rewrites:    %d\n", len(f.URLMap.Data()))
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{protectCmd, unprotectCmd} {
		c.Flags().BoolVar(&skipContentHooks, "no-update-content", false, "rewrite content bodies without firing content update hooks")
	}
}

func parseID(s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid media id %q", s)
	}

	return uint(id), nil
}

// setRestricted runs every id and reports the first failure after trying all
func setRestricted(cmd *cobra.Command, args []string, restrict bool) error {
	var firstErr error

	for _, a := range args {
		id, err := parseID(a)
		if err != nil {
			return err
		}

		res, err := deps.Engine.SetRestricted(cmd.Context(), id, restrict, service.TransitionOptions{UpdateContent: !skipContentHooks})
		if err != nil {
			PrintErr("media %d: %v", id, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		fmt.Fprintf(cmd.OutOrStdout(), "media %d: %s\n", id, res)
	}

	return firstErr
}
