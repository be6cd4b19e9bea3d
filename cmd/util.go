// rnaseq: an RNA-Seq alignment, quantification and aggregation pipeline.
// Copyright (c) 2021 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/exascience/rnaseq/blob/master/LICENSE.txt>.

package cmd

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/exascience/rnaseq/config"
	"github.com/exascience/rnaseq/internal"
	"github.com/exascience/rnaseq/utils"
)

// ProgramMessage is the first line printed when the rnaseq binary is
// called.
var ProgramMessage = fmt.Sprint(
	"\n", utils.ProgramName, " version ", utils.ProgramVersion,
	" compiled with ", runtime.Version(), " - see ", utils.ProgramURL, " for more information.\n",
)

// HelpMessage is printed to show the --help flag
const HelpMessage = "Print command details:\n" +
	"[--help]\n"

// CommonHelp lists the flags that all commands accept.
const CommonHelp = "[--config-db file]\n" +
	"[--option name=value]\n" +
	"[--timed]\n" +
	"[--profile file]\n" +
	"[--metrics-file file]\n" +
	"[--log-path path]\n"

func getFilename(s, help string) string {
	switch s {
	case "-h", "--h", "-help", "--help":
		fmt.Fprint(os.Stderr, help)
		os.Exit(0)
	default:
		if strings.HasPrefix(s, "-") {
			log.Println("Filename(s) in command line missing.")
			fmt.Fprint(os.Stderr, help)
			os.Exit(1)
		}
	}
	return s
}

// positionalArgs returns the arguments before the first flag.
func positionalArgs(args []string) (positional, rest []string) {
	for i, arg := range args {
		if strings.HasPrefix(arg, "-") {
			return args[:i], args[i:]
		}
	}
	return args, nil
}

func parseFlags(flags *flag.FlagSet, requiredArgs int, help string) {
	if len(os.Args) < requiredArgs {
		fmt.Fprintln(os.Stderr, "Incorrect number of parameters.")
		fmt.Fprint(os.Stderr, help)
		os.Exit(1)
	}
	parseFlagArgs(flags, os.Args[requiredArgs:], help)
}

func parseFlagArgs(flags *flag.FlagSet, args []string, help string) {
	flags.SetOutput(io.Discard)
	if err := flags.Parse(args); err != nil {
		x := 0
		if err != flag.ErrHelp {
			fmt.Fprintln(os.Stderr, err)
			x = 1
		}
		fmt.Fprint(os.Stderr, help)
		os.Exit(x)
	}
	if flags.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Cannot parse remaining parameters:", flags.Args())
		fmt.Fprint(os.Stderr, help)
		os.Exit(1)
	}
}

// optionOverrides collects --option name=value flags. They take
// precedence over the option store for one run.
type optionOverrides []string

func (o *optionOverrides) String() string {
	return strings.Join(*o, ",")
}

func (o *optionOverrides) Set(value string) error {
	name, _, ok := strings.Cut(value, "=")
	if !ok {
		return fmt.Errorf("option %q is not of the form name=value", value)
	}
	if _, ok := config.Lookup(strings.TrimSpace(name)); !ok {
		return &config.InvalidOptionError{Option: name, Reason: "unknown option"}
	}
	*o = append(*o, value)
	return nil
}

func (o optionOverrides) apply(c *config.Config) error {
	var errs []error
	for _, override := range o {
		name, value, _ := strings.Cut(override, "=")
		if err := c.Override(strings.TrimSpace(name), value); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// commonFlags are accepted by every command.
type commonFlags struct {
	configDB, logPath, profile, metricsFile string
	timed                                   bool
	overrides                               optionOverrides
}

func (common *commonFlags) register(flags *flag.FlagSet) {
	flags.StringVar(&common.configDB, "config-db", "", "option store database")
	flags.Var(&common.overrides, "option", "override an option for this run, as name=value")
	flags.BoolVar(&common.timed, "timed", false, "measure the runtime")
	flags.StringVar(&common.profile, "profile", "", "write a runtime profile to the specified file(s)")
	flags.StringVar(&common.metricsFile, "metrics-file", "", "write metrics to the specified file")
	flags.StringVar(&common.logPath, "log-path", "", "write log files to the specified directory")
}

func (common *commonFlags) commandLine(command *strings.Builder) {
	if common.configDB != "" {
		fmt.Fprint(command, " --config-db ", common.configDB)
	}
	for _, override := range common.overrides {
		fmt.Fprint(command, " --option ", override)
	}
	if common.timed {
		fmt.Fprint(command, " --timed")
	}
	if common.profile != "" {
		fmt.Fprint(command, " --profile ", common.profile)
	}
	if common.metricsFile != "" {
		fmt.Fprint(command, " --metrics-file ", common.metricsFile)
	}
	if common.logPath != "" {
		fmt.Fprint(command, " --log-path ", common.logPath)
	}
}

func logCheckFile(parameter, format string, v ...interface{}) {
	if parameter != "" {
		log.Printf(format+" for command line parameter %v.\n", append(v, parameter)...)
	} else {
		log.Printf(format+".\n", v...)
	}
}

func checkExist(parameter, filename string) bool {
	if len(filename) == 0 {
		logCheckFile(parameter, "Error: Missing filename")
		return false
	}
	if filename[0] == '-' {
		logCheckFile(parameter, "Error: Missing filename before %v", filename)
		return false
	}
	if _, err := os.Stat(filename); err == nil {
		return true
	} else if os.IsNotExist(err) {
		logCheckFile(parameter, "Error: File %v does not exist", filename)
		return false
	} else if os.IsPermission(err) {
		logCheckFile(parameter, "Error: No permission to read file %v", filename)
		return false
	} else {
		logCheckFile(parameter, "Error %v when trying to access file %v", err, filename)
		return false
	}
}

func checkCreate(parameter, filename string) bool {
	if len(filename) == 0 {
		logCheckFile(parameter, "Error: Missing filename")
		return false
	}
	if filename[0] == '-' {
		logCheckFile(parameter, "Error: Missing filename before %v", filename)
		return false
	}
	if _, err := os.Stat(filename); err == nil {
		// Assume that the file has been written by previous rnaseq runs, and can be overwritten.
		return true
	}
	err := internal.EnsureParentDirs(filename)
	if err == nil {
		err = os.WriteFile(filename, nil, 0666)
	}
	if err != nil {
		if os.IsPermission(err) {
			logCheckFile(parameter, "Error: No permission to create file %v", filename)
		} else {
			logCheckFile(parameter, "Error %v when trying to create file %v", err, filename)
		}
		return false
	}
	_ = os.Remove(filename)
	return true
}

func createLogFilename() string {
	t := time.Now()
	zone, _ := t.Zone()
	return fmt.Sprintf("logs/rnaseq/rnaseq-%d-%02d-%02d-%02d-%02d-%02d-%09d-%v.log", t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), zone)
}

func setLogOutput(path string) error {
	logPath := createLogFilename()
	var fullPath string
	if path == "" {
		fullPath = filepath.Join(os.Getenv("HOME"), logPath)
	} else {
		fullPath = filepath.Join(path, logPath)
	}
	fullPath, err := internal.FullPathname(fullPath)
	if err != nil {
		return err
	}
	if err := internal.EnsureParentDirs(fullPath); err != nil {
		return err
	}
	f, err := os.Create(fullPath)
	if err != nil {
		return err
	}
	fmt.Fprintln(f, ProgramMessage)

	orgStderr, err := unix.Dup(2)
	if err != nil {
		return err
	}
	ferr := os.NewFile(uintptr(orgStderr), "/dev/stderr")
	if err := unix.Dup2(int(f.Fd()), 2); err != nil {
		return err
	}

	multi := io.MultiWriter(f, ferr)

	log.SetOutput(multi)
	log.Println("Created log file at", fullPath)
	log.Println("Command line:", os.Args)
	return nil
}

func timedRun(timed bool, profile, msg string, phase int64, f func() error) (err error) {
	if profile != "" {
		filename := profile + strconv.FormatInt(phase, 10) + ".prof"
		file, ferr := os.Create(filename)
		if ferr != nil {
			return ferr
		}
		defer internal.Close(file, &err)
		if perr := pprof.StartCPUProfile(file); perr != nil {
			return perr
		}
		defer pprof.StopCPUProfile()
	}
	if timed {
		log.Println(msg)
		start := time.Now()
		defer func() {
			end := time.Now()
			log.Println("Elapsed time: ", end.Sub(start))
		}()
	}
	return f()
}

// A session holds the state of one command run: the option store,
// the resolved configuration, the metrics and the run history entry.
type session struct {
	common  *commonFlags
	store   *config.Store
	config  *config.Config
	metrics *internal.Metrics
	run     config.Run
}

func openSession(command string, common *commonFlags) (*session, error) {
	store, err := config.OpenStore(common.configDB)
	if err != nil {
		return nil, err
	}
	cfg, err := store.Load()
	if err == nil {
		err = common.overrides.apply(cfg)
	}
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	s := &session{
		common:  common,
		store:   store,
		config:  cfg,
		metrics: internal.NewMetrics(),
		run: config.Run{
			ID:      uuid.New().String(),
			Command: command,
			Started: time.Now(),
			Status:  "running",
		},
	}
	log.Printf("Run %v of %v using option store %v.\n", s.run.ID, command, store.Path())
	s.run.Finished = s.run.Started
	if err := store.RecordRun(s.run); err != nil {
		_ = store.Close()
		return nil, err
	}
	return s, nil
}

// finish records the outcome of the run, writes the metrics file
// when requested, and closes the option store. It returns err, or
// the first error that occurs while finishing.
func (s *session) finish(err error) error {
	s.run.Finished = time.Now()
	if err != nil {
		s.run.Status = "failed"
	} else {
		s.run.Status = "succeeded"
	}
	errs := []error{err, s.store.RecordRun(s.run)}
	if s.common.metricsFile != "" {
		errs = append(errs, s.metrics.WriteFile(s.common.metricsFile))
	}
	errs = append(errs, s.store.Close())
	log.Printf("Run %v %v after %v.\n", s.run.ID, s.run.Status, s.run.Finished.Sub(s.run.Started))
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}

// timed runs one phase of a command with the session's timing and
// profiling settings.
func (s *session) timed(phase int64, msg string, f func() error) error {
	return timedRun(s.common.timed, s.common.profile, msg, phase, f)
}
