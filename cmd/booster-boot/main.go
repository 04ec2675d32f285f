// Copyright 2024 The booster Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command booster-boot (re)starts and supervises the Booster daemon: it
// kills any stale instance, starts boosterd with its output redirected
// to a log file and restarts it whenever it dies. With -pmon the
// resource usage of the daemon is sampled to a side log.
package main // import "github.com/b787abel/booster/cmd/booster-boot"

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/sbinet/pmon"
	"golang.org/x/sync/errgroup"
)

var (
	dir = os.Getenv("BOOSTERLOGDIR")

	cfg     = flag.String("cfg", "/etc/booster/boosterd.yaml", "boosterd configuration file")
	doMon   = flag.Bool("pmon", false, "enable pmon monitoring")
	doFreq  = flag.Duration("freq", 1*time.Second, "pmon frequency")
	backoff = flag.Duration("backoff", 5*time.Second, "delay before a crashed daemon is restarted")

	stop = make(chan os.Signal, 1)
)

func main() {
	flag.Parse()

	log.SetPrefix("booster-boot: ")
	log.SetFlags(0)

	err := run(*cfg, dir, *doMon, *doFreq, *backoff, stop)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(cfg, dir string, doMon bool, freq, backoff time.Duration, stop chan os.Signal) error {
	signal.Notify(stop, os.Interrupt)
	defer signal.Stop(stop)

	kill := exec.Command("killall", "boosterd")
	kill.Stderr = os.Stderr
	kill.Stdout = os.Stdout
	if err := kill.Run(); err != nil {
		log.Printf("could not kill stale boosterd: %+v", err)
	}

	if dir == "" {
		dir = "/var/log/booster"
	}

	var (
		grp  errgroup.Group
		quit = make(chan int)
	)
	grp.Go(func() error {
		return supervise(cfg, dir, quit, doMon, freq, backoff)
	})

	go func() {
		<-stop
		close(quit)
	}()

	err := grp.Wait()
	if err != nil {
		return fmt.Errorf("could not boot booster: %w", err)
	}
	return nil
}

// supervise runs boosterd until quit is closed, restarting it after a
// backoff delay whenever it exits on its own.
func supervise(cfg, dir string, quit chan int, doMon bool, freq, backoff time.Duration) error {
	for {
		err := start(exec.Command("boosterd", "-cfg", cfg), dir, quit, doMon, freq)
		select {
		case <-quit:
			return err
		default:
		}
		if err != nil {
			log.Printf("boosterd died: %+v", err)
		} else {
			log.Printf("boosterd exited")
		}

		log.Printf("restarting boosterd in %v...", backoff)
		select {
		case <-quit:
			return nil
		case <-time.After(backoff):
		}
	}
}

func start(cmd *exec.Cmd, dir string, quit chan int, doMon bool, freq time.Duration) error {
	name := filepath.Base(cmd.Path)
	out, err := os.Create(filepath.Join(dir, name+".log"))
	if err != nil {
		return fmt.Errorf("could not create output log file for %q: %w", name, err)
	}
	defer out.Close()

	cmd.Stdout = out
	cmd.Stderr = out

	log.Printf("starting %q...", name)
	err = cmd.Start()
	if err != nil {
		return fmt.Errorf("could not start %q: %w", name, err)
	}

	if doMon {
		p, err := pmon.Monitor(cmd.Process.Pid)
		if err != nil {
			return fmt.Errorf("could not start monitoring %q (pid=%d): %w", name, cmd.Process.Pid, err)
		}
		f, err := os.Create(filepath.Join(dir, name+"-pmon.log"))
		if err != nil {
			return fmt.Errorf("could not create pmon log file for command %q: %w", name, err)
		}
		defer f.Close()
		p.W = f
		p.Freq = freq

		go func() {
			log.Printf("run pmon %q...", name)
			err := p.Run()
			if err != nil {
				log.Printf("could not start monitoring %q: %+v", name, err)
			}
		}()

		defer func() {
			err := p.Kill()
			if err != nil {
				log.Printf("could not stop monitoring %q: %+v", name, err)
			}
		}()
	}

	errch := make(chan error)
	go func() {
		errch <- cmd.Wait()
	}()

	select {
	case <-quit:
		// An interrupt lets the daemon shut down in order: it parks the
		// channels itself before exiting.
		if err := cmd.Process.Signal(os.Interrupt); err != nil {
			return fmt.Errorf("could not interrupt %q: %+v", name, err)
		}
		select {
		case err = <-errch:
		case <-time.After(10 * time.Second):
			if err := cmd.Process.Kill(); err != nil {
				return fmt.Errorf("could not kill %q: %+v", name, err)
			}
			<-errch
		}
		return nil
	case err = <-errch:
		if err != nil {
			return fmt.Errorf("could not run %q: %w", name, err)
		}
	}

	return nil
}
