package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"ruangkelas/internal/app"
	"ruangkelas/internal/auth"
	"ruangkelas/internal/config"
	"ruangkelas/internal/database"
	"ruangkelas/internal/session"
	pkgdatabase "ruangkelas/pkg/database"
	"ruangkelas/pkg/interfaces"
	"ruangkelas/pkg/types"
)

// withDatabase loads the configuration, opens a migrated database and runs fn
func withDatabase(c *cli.Command, fn func(cfg *config.Config, db *database.Manager) error) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	db, err := app.OpenDatabase(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	return fn(cfg, db)
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply database migrations",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "status",
				Usage: "Show pending migrations without applying them",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			return runMigrations(c.Root().Writer, cfg, c.Bool("status"))
		},
	}
}

func runMigrations(w io.Writer, cfg *config.Config, statusOnly bool) error {
	db, err := database.NewManager(app.DatabaseConfig(cfg))
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if statusOnly {
		pending, err := pkgdatabase.NewMigrationManager(db.GetDB(), pkgdatabase.Migrations()).Pending()
		if err != nil {
			return fmt.Errorf("checking migrations: %w", err)
		}
		if len(pending) == 0 {
			fmt.Fprintln(w, "Schema is up to date")
			return nil
		}
		for _, m := range pending {
			fmt.Fprintf(w, "pending %s %s\n", m.Version, m.Description)
		}
		return nil
	}

	applied, err := db.Migrate()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Applied %d migration(s)\n", len(applied))
	return nil
}

func userCommand() *cli.Command {
	return &cli.Command{
		Name:  "user",
		Usage: "Manage the user directory",
		Commands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Create a principal, teacher or student",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Required: true},
					&cli.StringFlag{Name: "role", Required: true, Usage: "principal, teacher or student"},
					&cli.StringFlag{Name: "password", Required: true, Sources: cli.EnvVars(config.EnvPrefix + "PASSWORD")},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return withDatabase(c, func(_ *config.Config, db *database.Manager) error {
						return addUser(ctx, c.Root().Writer, db, c.String("name"), c.String("role"), c.String("password"))
					})
				},
			},
			{
				Name:  "passwd",
				Usage: "Reset a user's password",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Required: true},
					&cli.StringFlag{Name: "password", Required: true, Sources: cli.EnvVars(config.EnvPrefix + "PASSWORD")},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return withDatabase(c, func(_ *config.Config, db *database.Manager) error {
						return resetPassword(ctx, c.Root().Writer, db, c.String("name"), c.String("password"))
					})
				},
			},
			{
				Name:  "list",
				Usage: "List every user",
				Action: func(ctx context.Context, c *cli.Command) error {
					return withDatabase(c, func(_ *config.Config, db *database.Manager) error {
						return listUsers(ctx, c.Root().Writer, db)
					})
				},
			},
		},
	}
}

func addUser(ctx context.Context, w io.Writer, db interfaces.DatabaseManager, name, rawRole, password string) error {
	role, err := types.ParseRole(rawRole)
	if err != nil {
		return err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	user := &types.User{Name: name, Role: role, PasswordHash: hash}
	if err := db.CreateUser(ctx, user); err != nil {
		if errors.Is(err, interfaces.ErrConflict) {
			return fmt.Errorf("user %q already exists; use 'user passwd' to reset the password", name)
		}
		return err
	}
	fmt.Fprintf(w, "Created %s %q with id %d\n", user.Role, user.Name, user.ID)
	return nil
}

func resetPassword(ctx context.Context, w io.Writer, db interfaces.DatabaseManager, name, password string) error {
	user, err := db.GetUserByName(ctx, name)
	if err != nil {
		return fmt.Errorf("user %q: %w", name, err)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	if err := db.UpdateUserPassword(ctx, user.ID, hash); err != nil {
		return err
	}
	fmt.Fprintf(w, "Password updated for %q\n", user.Name)
	return nil
}

func listUsers(ctx context.Context, w io.Writer, db interfaces.DatabaseManager) error {
	users, err := db.ListUsers(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tROLE")
	for _, u := range users {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", u.ID, u.Name, u.Role)
	}
	return tw.Flush()
}

func roomCommand() *cli.Command {
	return &cli.Command{
		Name:  "room",
		Usage: "Manage rooms (kelas)",
		Commands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Create a room taught by an existing teacher",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Required: true},
					&cli.StringFlag{Name: "teacher", Required: true, Usage: "name of the teacher"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return withDatabase(c, func(_ *config.Config, db *database.Manager) error {
						return addRoom(ctx, c.Root().Writer, db, c.String("name"), c.String("teacher"))
					})
				},
			},
			{
				Name:  "list",
				Usage: "List rooms",
				Action: func(ctx context.Context, c *cli.Command) error {
					return withDatabase(c, func(_ *config.Config, db *database.Manager) error {
						return listRooms(ctx, c.Root().Writer, db)
					})
				},
			},
		},
	}
}

func addRoom(ctx context.Context, w io.Writer, db interfaces.DatabaseManager, name, teacherName string) error {
	teacher, err := db.GetUserByName(ctx, teacherName)
	if err != nil {
		return fmt.Errorf("teacher %q: %w", teacherName, err)
	}
	room := &types.Room{Name: name, TeacherID: teacher.ID}
	if err := db.CreateRoom(ctx, room); err != nil {
		return err
	}
	fmt.Fprintf(w, "Created room %q with id %d\n", room.Name, room.ID)
	return nil
}

func listRooms(ctx context.Context, w io.Writer, db interfaces.DatabaseManager) error {
	rooms, err := db.ListRooms(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTEACHER")
	for _, r := range rooms {
		fmt.Fprintf(tw, "%d\t%s\t%d\n", r.ID, r.Name, r.TeacherID)
	}
	return tw.Flush()
}

func materialCommand() *cli.Command {
	return &cli.Command{
		Name:  "material",
		Usage: "Manage learning materials (materi)",
		Commands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Publish a material into a room",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "room", Required: true, Usage: "room id"},
					&cli.StringFlag{Name: "title", Required: true},
					&cli.StringFlag{Name: "body"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return withDatabase(c, func(_ *config.Config, db *database.Manager) error {
						return addMaterial(ctx, c.Root().Writer, db, c.Int64("room"), c.String("title"), c.String("body"))
					})
				},
			},
		},
	}
}

func addMaterial(ctx context.Context, w io.Writer, db interfaces.DatabaseManager, roomID int64, title, body string) error {
	if _, err := db.GetRoom(ctx, roomID); err != nil {
		return fmt.Errorf("room %d: %w", roomID, err)
	}
	material := &types.Material{RoomID: roomID, Title: title, Body: body}
	if err := db.CreateMaterial(ctx, material); err != nil {
		return err
	}
	fmt.Fprintf(w, "Created material %q with id %d\n", material.Title, material.ID)
	return nil
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Print a session token for a user (for scripted clients)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Required: true},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return withDatabase(c, func(cfg *config.Config, db *database.Manager) error {
				return issueToken(ctx, c.Root().Writer, cfg, db, c.String("name"))
			})
		},
	}
}

func issueToken(ctx context.Context, w io.Writer, cfg *config.Config, db interfaces.DatabaseManager, name string) error {
	user, err := db.GetUserByName(ctx, name)
	if err != nil {
		return fmt.Errorf("user %q: %w", name, err)
	}
	sessions, err := session.NewManager(db, []byte(cfg.Auth.SessionSecret), cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}
	token, err := sessions.IssueToken(ctx, user.ID)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, token)
	return nil
}
