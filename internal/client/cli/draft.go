package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/fleetzen/internal/api"
	"github.com/dmitrijs2005/fleetzen/internal/client/models"
	"github.com/dmitrijs2005/fleetzen/internal/client/services"
	"github.com/dmitrijs2005/fleetzen/internal/common"
)

var photoMimeTypes = []string{"image/jpeg", "image/png", "image/webp"}

func newDraftCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "draft",
		Short: "Create, edit and submit intervention drafts",
		Long: `Drafts are kept on this device until they are submitted or deleted.

Examples:
  fleetzen-agent draft new fuel_delivery
  fleetzen-agent draft set <id> fuelType=diesel fuelQuantity=42.5
  fleetzen-agent draft photo <id> before pump.jpg
  fleetzen-agent draft submit <id>`,
	}
	cmd.AddCommand(
		newDraftNewCommand(s),
		newDraftSetCommand(s),
		newDraftEditCommand(s),
		newDraftPhotoCommand(s),
		newDraftShowCommand(s),
		newDraftListCommand(s),
		newDraftDeleteCommand(s),
		newDraftSubmitCommand(s),
	)
	return cmd
}

func newDraftNewCommand(s *session) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "new <wash|fuel_delivery|tank_refill>",
		Short: "Start a draft, prefilled with the last client and vehicle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := s.app
			ctx := cmd.Context()

			t, err := models.ParsePrestationType(args[0])
			if err != nil {
				return fmt.Errorf("%w: %w", common.ErrValidation, err)
			}
			if id == "" {
				id = uuid.NewString()
			}

			d := &models.Draft{ID: id, TypePrestation: t, FormData: models.FormData{}, CurrentStep: 1}
			lc, err := a.LastContext.Recall(ctx)
			if err != nil {
				a.Logger.Warn(ctx, "last context unavailable", "error", err)
			}
			if lc != nil {
				setIfNotEmpty(d.FormData, "clientId", lc.ClientID)
				setIfNotEmpty(d.FormData, "vehicleId", lc.VehicleID)
				setIfNotEmpty(d.FormData, "typeId", lc.TypeID)
			}

			if err := a.Drafts.Save(ctx, d); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), d.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "draft id (generated when empty)")
	return cmd
}

func newDraftSetCommand(s *session) *cobra.Command {
	var step int
	cmd := &cobra.Command{
		Use:   "set <id> <field=value>...",
		Short: "Set form fields; an empty value clears the field",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := s.app
			ctx := cmd.Context()

			d, _, err := a.Drafts.Resume(ctx, args[0])
			if err != nil {
				return err
			}
			for _, kv := range args[1:] {
				if err := applyField(d, kv); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("step") {
				d.CurrentStep = step
			}
			return a.Drafts.Save(ctx, d)
		},
	}
	cmd.Flags().IntVar(&step, "step", 1, "wizard step to resume at")
	return cmd
}

func newDraftEditCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit a draft interactively with auto-save",
		Long: `Read "field=value" or "step <n>" lines from standard input. The draft is
saved automatically once input pauses, and on "done" or end of input.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := s.app
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			d, _, err := a.Drafts.Resume(ctx, args[0])
			if err != nil {
				return err
			}

			a.Drafts.OnWarning = func(err error) {
				yellow.Fprintf(out, "warning: draft not saved: %v\n", err)
			}
			deb := services.NewDebouncer(*d, a.Config.DebounceDelay, func(snap models.Draft) {
				a.Drafts.AutoSave(ctx, &snap)
			})
			defer deb.Stop()

			return editLoop(cmd.InOrStdin(), out, d, deb)
		},
	}
}

// editLoop applies input lines to a working copy of d and hands every
// resulting state to deb.
func editLoop(in io.Reader, out io.Writer, d *models.Draft, deb *services.Debouncer) error {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
			continue
		case line == "done":
			deb.Flush()
			return nil
		case strings.HasPrefix(line, "step "):
			n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "step ")))
			if err != nil || n < 1 {
				red.Fprintf(out, "invalid step %q\n", line)
				continue
			}
			d.CurrentStep = n
		default:
			if err := applyField(d, line); err != nil {
				red.Fprintln(out, err)
				continue
			}
		}
		deb.Change(*d)
	}
	deb.Flush()
	return sc.Err()
}

func applyField(d *models.Draft, kv string) error {
	k, v, ok := strings.Cut(kv, "=")
	k = strings.TrimSpace(k)
	if !ok || k == "" {
		return fmt.Errorf("%w: expected field=value, got %q", common.ErrValidation, kv)
	}
	if k == models.FieldPhotosBefore || k == models.FieldPhotosAfter {
		return fmt.Errorf("%w: use 'draft photo' to add photos", common.ErrValidation)
	}
	if d.FormData == nil {
		d.FormData = models.FormData{}
	}
	if v == "" {
		delete(d.FormData, k)
		return nil
	}
	d.FormData[k] = v
	return nil
}

func setIfNotEmpty(fd models.FormData, k, v string) {
	if v != "" {
		fd[k] = v
	}
}

func newDraftPhotoCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "photo <id> <before|after> <file>...",
		Short: "Attach photos to a draft",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := s.app
			ctx := cmd.Context()

			field, err := photoField(args[1])
			if err != nil {
				return err
			}
			files := make([]models.File, 0, len(args)-2)
			for _, path := range args[2:] {
				f, err := readPhoto(path)
				if err != nil {
					return err
				}
				files = append(files, f)
			}

			d, _, err := a.Drafts.Resume(ctx, args[0])
			if err != nil {
				return err
			}
			if d.FormData == nil {
				d.FormData = models.FormData{}
			}
			d.FormData[field] = files
			if err := a.Drafts.Save(ctx, d); err != nil {
				return err
			}

			descs, _ := d.FormData[field].([]models.PhotoDescriptor)
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", field, plural(len(descs), "photo"))
			return nil
		},
	}
}

func photoField(kind string) (string, error) {
	switch kind {
	case api.PhotoBefore:
		return models.FieldPhotosBefore, nil
	case api.PhotoAfter:
		return models.FieldPhotosAfter, nil
	}
	return "", fmt.Errorf("%w: photo kind must be before or after, got %q", common.ErrValidation, kind)
}

func readPhoto(path string) (models.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.File{}, err
	}
	mt := mimetype.Detect(data)
	if !mimetype.EqualsAny(mt.String(), photoMimeTypes...) {
		return models.File{}, fmt.Errorf("%w: %s is %s", common.ErrUnsupportedMedia, path, mt.String())
	}
	return models.File{Name: filepath.Base(path), MimeType: mt.String(), Data: data}, nil
}

func newDraftShowCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a draft and whether it is ready to submit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := s.app
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			d, files, err := a.Drafts.Resume(ctx, args[0])
			if err != nil {
				return err
			}

			cyan.Fprintf(out, "Draft %s\n", d.ID)
			fmt.Fprintf(out, "Type:    %s\n", d.TypePrestation)
			fmt.Fprintf(out, "Step:    %d\n", d.CurrentStep)
			fmt.Fprintf(out, "Updated: %s\n", d.UpdatedAt.Format("2006-01-02 15:04:05"))

			keys := make([]string, 0, len(d.FormData))
			for k := range d.FormData {
				if k != models.FieldPhotosBefore && k != models.FieldPhotosAfter {
					keys = append(keys, k)
				}
			}
			sort.Strings(keys)
			if len(keys) > 0 {
				fmt.Fprintln(out)
			}
			for _, k := range keys {
				fmt.Fprintf(out, "  %s = %v\n", k, d.FormData[k])
			}

			fmt.Fprintln(out)
			for _, f := range []string{models.FieldPhotosBefore, models.FieldPhotosAfter} {
				fmt.Fprintf(out, "  %s: %s\n", f, plural(len(files[f]), "photo"))
			}

			fmt.Fprintln(out)
			if _, err := services.NewDraftSubmitter(a.Drafts, nil, nil, a.Logger).PreviewDraft(ctx, d.ID); err != nil {
				red.Fprintf(out, "Not ready: %v\n", err)
				return nil
			}
			green.Fprintln(out, "Ready to submit")
			return nil
		},
	}
}

func newDraftListCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List drafts, most recently edited first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			list, err := s.app.Drafts.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(out, "No drafts")
				return nil
			}
			for _, d := range list {
				fmt.Fprintf(out, "%s  %-13s  step %d  %s\n",
					d.ID, d.TypePrestation, d.CurrentStep, d.UpdatedAt.Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
}

func newDraftDeleteCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a draft and its photos",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.app.Drafts.Clear(cmd.Context(), args[0])
		},
	}
}

func newDraftSubmitCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <id>",
		Short: "Submit a draft, or queue it when the server is unreachable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := s.app
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			sub := services.NewDraftSubmitter(a.Drafts, a.dispatcher(a.probe(ctx)), a.LastContext, a.Logger)
			res, err := sub.SubmitDraft(ctx, args[0])
			if err != nil {
				return err
			}
			printResult(ctx, out, a, res)
			return nil
		},
	}
}

func printResult(ctx context.Context, out io.Writer, a *App, res services.Result) {
	if res.Outcome == services.OutcomeSent {
		green.Fprintf(out, "Sent as %s\n", res.Intervention.Number)
		return
	}

	yellow.Fprintf(out, "Queued as %s", shortID(res.TempID))
	if res.Err != nil && !errors.Is(res.Err, context.Canceled) {
		fmt.Fprintf(out, " (%v)", res.Err)
	}
	fmt.Fprintln(out)
	if n, err := a.Queue.GetPendingCount(ctx); err == nil {
		fmt.Fprintf(out, "%s waiting to sync\n", plural(n, "submission"))
	}
}
