// Command client is the field damage-reporting CLI: sign in, capture a photo
// with a GPS fix, submit it as a damage request and list what was submitted.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh/terminal"

	"github.com/hti6/hti6-mobile/internal/api"
	"github.com/hti6/hti6-mobile/internal/auth"
	"github.com/hti6/hti6-mobile/internal/capture"
	"github.com/hti6/hti6-mobile/internal/config"
	"github.com/hti6/hti6-mobile/internal/damage"
	"github.com/hti6/hti6-mobile/internal/geo"
	"github.com/hti6/hti6-mobile/internal/store"
	"github.com/hti6/hti6-mobile/internal/utils"
)

// app is the composition root: every service is constructed once here and
// handed to the commands explicitly.
type app struct {
	cfg     config.Config
	log     *utils.Logger
	session *auth.Session
	damage  *damage.Client
}

func main() {
	cfg := config.Load()

	log, err := utils.NewLogger(filepath.Join(cfg.StateDir, "client.log"))
	if err != nil {
		log = utils.NewStderrLogger()
	}
	defer log.Close()

	st := store.New(cfg.StateDir)
	session := auth.New(st, cfg.APIURL, cfg.RequestTimeout, log)

	a := &app{
		cfg:     cfg,
		log:     log,
		session: session,
		damage:  damage.NewClient(session, cfg.APIURL, cfg.RequestTimeout),
	}

	root := &cobra.Command{
		Use:           "client",
		Short:         "Field damage-reporting client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		a.loginCmd(),
		a.logoutCmd(),
		a.whoamiCmd(),
		a.captureCmd(),
		a.listCmd(),
	)

	if err := root.Execute(); err != nil {
		if errors.Is(err, api.ErrSessionExpired) || errors.Is(err, api.ErrUnauthenticated) {
			fmt.Fprintln(os.Stderr, "Error:", err)
			fmt.Fprintln(os.Stderr, "Run \"client login\" to sign in again.")
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func (a *app) loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login [login]",
		Short: "Sign in and store the session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var login string
			if len(args) == 1 {
				login = args[0]
			} else {
				fmt.Fprint(os.Stderr, "Login: ")
				line, err := bufio.NewReader(os.Stdin).ReadString('\n')
				if err != nil {
					return fmt.Errorf("read login: %w", err)
				}
				login = strings.TrimSpace(line)
			}

			password, err := readPassword()
			if err != nil {
				return err
			}

			ok, err := a.session.Login(cmd.Context(), login, password)
			if err != nil {
				return err
			}
			if !ok {
				return errors.New("invalid login or password")
			}

			user, err := a.session.User(cmd.Context())
			if err != nil || user == nil {
				fmt.Println("Signed in.")
				return nil
			}
			fmt.Printf("Signed in as %s (%s)\n", user.Name, user.Login)
			return nil
		},
	}
}

func readPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Password: ")
	fd := int(syscall.Stdin)
	if terminal.IsTerminal(fd) {
		b, err := terminal.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and clear stored credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.session.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("Signed out.")
			return nil
		},
	}
}

func (a *app) whoamiCmd() *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.session.IsAuthenticated(cmd.Context()) {
				return errors.New("not signed in")
			}
			if refresh {
				if err := a.session.RefreshUser(cmd.Context()); err != nil {
					return err
				}
			}
			user, err := a.session.User(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("%s\t%s\t%s\n", user.ID, user.Login, user.Name)
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "re-fetch the profile from the server")
	return cmd
}

func (a *app) captureCmd() *cobra.Command {
	var (
		photo     string
		lat, lon  float64
		noGeocode bool
		yes       bool
	)
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture a photo and location, then submit a damage request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if !a.session.IsAuthenticated(ctx) {
				return errors.New("not signed in")
			}

			var source geo.Source
			switch {
			case cmd.Flags().Changed("lat") && cmd.Flags().Changed("lon"):
				source = &geo.StaticSource{Latitude: lat, Longitude: lon}
			case a.cfg.LocateCmd != "":
				source = &geo.ExecSource{Command: a.cfg.LocateCmd}
			default:
				return errors.New("no location source: pass --lat/--lon or set HTI6_LOCATE_CMD")
			}

			var geocoder geo.Geocoder
			if !noGeocode {
				geocoder = geo.NewNominatim()
			}
			provider := geo.NewProvider(source, geocoder, a.cfg.LocationTimeout, a.log)

			var camera capture.Camera
			if photo != "" {
				camera = &capture.StaticCamera{Path: photo}
			} else {
				camera = &capture.PromptCamera{In: os.Stdin, Out: os.Stderr}
			}

			uploader := capture.NewUploader(a.cfg.UploadURL, a.cfg.RequestTimeout)
			orchestrator := capture.NewOrchestrator(camera, provider, uploader)

			submission, err := orchestrator.Capture(ctx)
			if err != nil {
				if errors.Is(err, geo.ErrUnavailable) {
					return fmt.Errorf("%w — enable location services in system settings", err)
				}
				return err
			}
			if submission == nil {
				fmt.Println("Capture cancelled.")
				return nil
			}

			fmt.Println("Pending damage request:")
			fmt.Printf("  Coordinates: %s\n",
				damage.FormatCoordinates(submission.Location.Latitude, submission.Location.Longitude))
			if submission.Address != "" {
				fmt.Printf("  Address:     %s\n", submission.Address)
			}
			fmt.Printf("  Photo:       %s\n", submission.PhotoURL)

			if !yes && !confirm("Submit?") {
				fmt.Println("Discarded.")
				return nil
			}

			rec, err := a.damage.Create(ctx,
				submission.Location.Latitude, submission.Location.Longitude, submission.PhotoURL)
			if err != nil {
				return err
			}
			fmt.Printf("Submitted damage request %s (priority %s)\n", rec.ID, rec.Priority)
			return nil
		},
	}
	cmd.Flags().StringVar(&photo, "photo", "", "photo file to submit (skips the interactive prompt)")
	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude override")
	cmd.Flags().Float64Var(&lon, "lon", 0, "longitude override")
	cmd.Flags().BoolVar(&noGeocode, "no-geocode", false, "skip reverse geocoding")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "submit without confirmation")
	return cmd
}

func confirm(prompt string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N]: ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func (a *app) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List submitted damage requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := a.damage.List(cmd.Context())
			if err != nil {
				return err
			}

			entries := damage.Present(records)
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPRIORITY\tCOORDINATES\tDATE\tPHOTO")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					e.ID, e.Priority, e.Coordinates, e.Date, e.PhotoURL)
			}
			return w.Flush()
		},
	}
}
