// Command shmctl inspects and drives the bridge's shared memory segment from
// the controller side: dump fields, read or write one field, or watch them.
//
//	shmctl [flags] dump
//	shmctl [flags] get <field>
//	shmctl [flags] set <field> <value>
//	shmctl [flags] watch
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/opencav/shmbridge/internal/actuator"
	"github.com/opencav/shmbridge/internal/shm"
	"github.com/opencav/shmbridge/internal/util"
)

var errUsage = errors.New("usage: shmctl [flags] dump | get <field> | set <field> <value> | watch")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "shmctl:", err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("shmctl", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	name := fs.StringP("name", "n", shm.DefaultName, "shared memory segment name")
	dir := fs.String("dir", "", "directory backing shared memory (default /dev/shm)")
	interval := fs.DurationP("interval", "i", 100*time.Millisecond, "watch poll interval")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	rest := fs.Args()
	if len(rest) == 0 {
		return errUsage
	}

	seg, err := shm.Attach(shm.Options{Name: *name, Dir: *dir})
	if err != nil {
		return err
	}
	defer seg.Close()

	switch cmd := rest[0]; cmd {
	case "dump":
		return dump(seg, out)
	case "get":
		if len(rest) != 2 {
			return errUsage
		}
		f, err := lookupField(rest[1])
		if err != nil {
			return err
		}
		v, err := seg.ReadFloat64(f.Offset)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, util.FormatFloat(v))
		return nil
	case "set":
		if len(rest) != 3 {
			return errUsage
		}
		f, err := lookupField(rest[1])
		if err != nil {
			return err
		}
		if !isActuator(f) {
			return fmt.Errorf("field %s is written by the bridge and cannot be set", f.Name)
		}
		v, err := strconv.ParseFloat(rest[2], 64)
		if err != nil {
			return fmt.Errorf("invalid value %q: %w", rest[2], err)
		}
		return seg.WriteFloat64(f.Offset, v)
	case "watch":
		return watch(ctx, seg, out, *interval)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func lookupField(name string) (shm.Field, error) {
	f, ok := shm.FieldByName(strings.ToLower(name))
	if !ok {
		names := make([]string, 0, len(shm.Fields()))
		for _, f := range shm.Fields() {
			names = append(names, f.Name)
		}
		return shm.Field{}, fmt.Errorf("unknown field %q (want one of %s)", name, strings.Join(names, ", "))
	}
	return f, nil
}

func isActuator(f shm.Field) bool {
	for _, a := range shm.ActuatorFields() {
		if a == f {
			return true
		}
	}
	return false
}

func dump(seg *shm.Segment, out io.Writer) error {
	raw, err := actuator.Raw(seg)
	if err != nil {
		return err
	}
	norm := actuator.Normalize(raw)
	dtc, err := seg.ReadFloat64(shm.OffsetDTC)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FIELD\tOFFSET\tRAW\tCOMMAND")
	rows := []struct {
		f        shm.Field
		raw, cmd float64
	}{
		{shm.FieldThrottle, raw.Throttle, norm.Throttle},
		{shm.FieldSteering, raw.Steering, norm.Steering},
		{shm.FieldBrake, raw.Brake, norm.Brake},
		{shm.FieldHandbrake, raw.Handbrake, norm.Handbrake},
	}
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", r.f.Name, r.f.Offset, util.FormatFloat(r.raw), util.FormatFloat(r.cmd))
	}
	fmt.Fprintf(tw, "%s\t%d\t%s\t-\n", shm.FieldDTC.Name, shm.FieldDTC.Offset, util.FormatFloat(dtc))
	return tw.Flush()
}

func watch(ctx context.Context, seg *shm.Segment, out io.Writer, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("invalid interval %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last string
	for {
		line, err := snapshot(seg)
		if err != nil {
			return err
		}
		if line != last {
			fmt.Fprintf(out, "%s %s\n", time.Now().Format(time.RFC3339Nano), line)
			last = line
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func snapshot(seg *shm.Segment) (string, error) {
	parts := make([]string, 0, len(shm.Fields()))
	for _, f := range shm.Fields() {
		v, err := seg.ReadFloat64(f.Offset)
		if err != nil {
			return "", err
		}
		parts = append(parts, f.Name+"="+util.FormatFloat(v))
	}
	return strings.Join(parts, " "), nil
}
