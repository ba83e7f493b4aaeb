package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/bytedance/sonic"
	"github.com/jmoiron/sqlx"

	echoapi "github.com/trezcool/edurise/apps/api/echo"
	"github.com/trezcool/edurise/core"
	"github.com/trezcool/edurise/core/mirror"
)

var errHelp = errors.New("help provided")

type mirrorService interface {
	Sync(ctx context.Context, schoolID string) (mirror.Report, error)
	ReadLocalCache(ctx context.Context, table string, filter mirror.Filter) ([]mirror.Row, error)
	SyncStatus(ctx context.Context, schoolID string) ([]mirror.SyncState, error)
}

type commandLine struct {
	db     *sqlx.DB
	svc    mirrorService
	auth   *echoapi.Auth
	logger core.Logger
	out    io.Writer
}

// whereFlag collects repeated -where col=val flags.
type whereFlag mirror.Filter

func (w whereFlag) String() string {
	parts := make([]string, 0, len(w))
	for col, val := range w {
		parts = append(parts, col+"="+val)
	}
	return strings.Join(parts, ",")
}

func (w whereFlag) Set(s string) error {
	col, val, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(col) == "" {
		return fmt.Errorf("%q must be of form col=val", s)
	}
	w[strings.TrimSpace(col)] = val
	return nil
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  sync -school SCHOOL_ID - mirror the school's remote collections into the local cache")
	fmt.Fprintln(cli.out, "  read -school SCHOOL_ID -table TABLE [-where col=val]... - print cached rows")
	fmt.Fprintln(cli.out, "  status -school SCHOOL_ID - print the last sync outcome of every table")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose migration command (up, down, status, version...)")
	fmt.Fprintln(cli.out, "  token -subject NAME [-roles admin,reader] - issue an API token")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	syncCmd := flag.NewFlagSet("sync", flag.ExitOnError)
	syncSchool := syncCmd.String("school", "", "The school ID.")

	readCmd := flag.NewFlagSet("read", flag.ExitOnError)
	readSchool := readCmd.String("school", "", "The school ID.")
	readTable := readCmd.String("table", "", "The cache table (students, staff, classes...).")
	readWhere := make(whereFlag)
	readCmd.Var(readWhere, "where", "Equality filter col=val; repeatable.")

	statusCmd := flag.NewFlagSet("status", flag.ExitOnError)
	statusSchool := statusCmd.String("school", "", "The school ID.")

	tokenCmd := flag.NewFlagSet("token", flag.ExitOnError)
	tokenSubject := tokenCmd.String("subject", "", "Who the token is issued to.")
	tokenRoles := tokenCmd.String("roles", echoapi.RoleAdmin, "Comma separated roles (admin, reader).")

	ctx := context.Background()
	switch args[1] {
	case "sync":
		if err := syncCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *syncSchool == "" {
			syncCmd.Usage()
			return errHelp
		}
		return cli.sync(ctx, *syncSchool)
	case "read":
		if err := readCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *readSchool == "" || *readTable == "" {
			readCmd.Usage()
			return errHelp
		}
		return cli.read(ctx, *readSchool, *readTable, mirror.Filter(readWhere))
	case "status":
		if err := statusCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *statusSchool == "" {
			statusCmd.Usage()
			return errHelp
		}
		return cli.status(ctx, *statusSchool)
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(ctx, args[2:])
	case "token":
		if err := tokenCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *tokenSubject == "" {
			tokenCmd.Usage()
			return errHelp
		}
		return cli.token(*tokenSubject, core.SplitList(*tokenRoles))
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) sync(ctx context.Context, schoolID string) error {
	report, err := cli.svc.Sync(ctx, schoolID)
	if err != nil && report.TaskID == "" {
		return err
	}

	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "TABLE\tROWS\tSKIPPED\tRESULT\n")
	for _, res := range report.Tables {
		result := "ok"
		if !res.OK() {
			result = res.Err.Error()
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", res.Table, res.Rows, res.Skipped, result)
	}
	if ferr := w.Flush(); ferr != nil {
		return ferr
	}
	fmt.Fprintf(cli.out, "task %s: %d rows in %s\n", report.TaskID, report.Rows(), report.FinishedAt.Sub(report.StartedAt))
	return err
}

func (cli *commandLine) read(ctx context.Context, schoolID, table string, filter mirror.Filter) error {
	filter[mirror.SchoolColumn] = schoolID
	rows, err := cli.svc.ReadLocalCache(ctx, table, filter)
	if err != nil {
		return err
	}
	data, err := sonic.ConfigDefault.MarshalIndent(rows, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cli.out, string(data))
	return err
}

func (cli *commandLine) status(ctx context.Context, schoolID string) error {
	states, err := cli.svc.SyncStatus(ctx, schoolID)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "TABLE\tSTATUS\tROWS\tSKIPPED\tSYNCED AT\tLAST SUCCESS\tERROR\n")
	for _, s := range states {
		succeeded := "never"
		if s.SucceededAt.Valid {
			succeeded = s.SucceededAt.Time.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
			s.Table, s.Status, s.Rows, s.Skipped, s.SyncedAt.Format("2006-01-02 15:04:05"), succeeded, s.Error.String)
	}
	return w.Flush()
}

func (cli *commandLine) token(subject string, roles []string) error {
	token, err := cli.auth.GenerateToken(cli.auth.NewClaims(subject, roles...))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cli.out, token)
	return err
}
