package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"

	"vaxscreen/config"
	"vaxscreen/display"
	"vaxscreen/eventloop"
	"vaxscreen/hotkey"
	"vaxscreen/ledger"
	"vaxscreen/logutil"
	"vaxscreen/messages"
	"vaxscreen/ocr"
	"vaxscreen/reconciler"
	"vaxscreen/sampler"
)

func main() {
	reset := flag.Bool("reset", false, "Drop and recreate both tables, then exit")
	dump := flag.Bool("dump", false, "Print the joined patient/vaccination report, then exit")
	headless := flag.Bool("headless", false, "Run without the output window (log sink only)")
	start := flag.Bool("start", false, "Begin sampling immediately")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logutil.Setup(cfg.EnableFileLogging)

	store, err := ledger.Open(cfg.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open ledger: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// One-shot administrative modes.
	if *reset {
		if err := store.Reset(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Reset failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Ledger reset: tables dropped and recreated.")
		return
	}
	if *dump {
		rows, err := store.Dump(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Dump failed: %v\n", err)
			os.Exit(1)
		}
		printReport(rows)
		return
	}

	engine := ocr.NewTesseractEngine(cfg.TesseractLang)
	recog := ocr.NewRecognizer(engine, cfg.AgeRegion, cfg.NameRegion)
	rec := reconciler.New(store, cfg.AgeThreshold)

	samples := make(chan messages.Sample, 4)
	sam := sampler.New(
		time.Duration(cfg.PollIntervalSec)*time.Second,
		time.Duration(cfg.OCRDeadlineSec)*time.Second,
		recog.Sample,
		samples,
	)
	defer sam.Close()

	var loop *eventloop.Loop
	post := func(cmd messages.Command) {
		if loop != nil {
			loop.Post(cmd)
		}
	}

	var sink display.Sink = display.LogSink{}
	var win *display.Window
	var fyneApp fyne.App
	if !*headless {
		fyneApp = app.New()
		win = display.NewWindow(fyneApp, display.Callbacks{
			OnOverride: func(v messages.VaccineType) { post(messages.SetOverride{Vaccine: v}) },
			OnClear:    func() { post(messages.ClearOverride{}) },
			OnClose: func() {
				// Window lifecycle is tied to sampling lifecycle: closing
				// the display must not leave orphaned background polling.
				post(messages.StopSampling{})
				cancel()
			},
		})
		sink = win
	}

	loop = eventloop.New(samples, rec, store, display.NewController(sink), sam)

	hotkey.Listen(cfg.Hotkey, func() { post(messages.ToggleSampling{}) })

	if *start {
		if !cfg.AgeRegion.Valid() || !cfg.NameRegion.Valid() {
			fmt.Fprintln(os.Stderr, "AGE_REGION and NAME_REGION must be configured to sample.")
		} else {
			post(messages.StartSampling{})
		}
	}

	go console(loop, store, cancel)

	if fyneApp != nil {
		loopDone := make(chan error, 1)
		go func() { loopDone <- loop.Run(ctx) }()
		go func() {
			// Fyne's Run blocks the main goroutine until quit; unblock it
			// when the console or a signal cancels the context.
			<-ctx.Done()
			fyne.DoAndWait(fyneApp.Quit)
		}()
		win.Show()
		fyneApp.Run()
		cancel()
		<-loopDone
		return
	}

	if err := loop.Run(ctx); err != nil && ctx.Err() == nil {
		log.Printf("Main: event loop exited: %v", err)
	}
}

// console reads debug commands from stdin and posts them into the event loop.
func console(loop *eventloop.Loop, store *ledger.Store, cancel context.CancelFunc) {
	fmt.Println("Commands: start | stop | force <age> <name> | override blue|green | clear | reset | dump | quit")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch strings.ToLower(fields[0]) {
		case "start":
			loop.Post(messages.StartSampling{})
		case "stop":
			loop.Post(messages.StopSampling{})
		case "force":
			if len(fields) < 3 {
				fmt.Println("usage: force <age> <name>")
				continue
			}
			age, err := strconv.Atoi(fields[1])
			if err != nil {
				fmt.Printf("bad age %q\n", fields[1])
				continue
			}
			loop.Post(messages.ForceSample{Age: age, Name: strings.Join(fields[2:], " ")})
		case "override":
			if len(fields) != 2 {
				fmt.Println("usage: override blue|green")
				continue
			}
			switch strings.ToLower(fields[1]) {
			case "blue":
				loop.Post(messages.SetOverride{Vaccine: messages.VaccineBlue})
			case "green":
				loop.Post(messages.SetOverride{Vaccine: messages.VaccineGreen})
			default:
				fmt.Println("usage: override blue|green")
			}
		case "clear":
			loop.Post(messages.ClearOverride{})
		case "reset":
			loop.Post(messages.ResetStore{})
		case "dump":
			loop.Post(messages.DumpStore{})
			// Also print to the console for operators running without
			// file logging. Reads are safe from here; only writes are
			// confined to the event loop.
			if rows, err := store.Dump(context.Background()); err == nil {
				printReport(rows)
			}
		case "quit", "exit":
			loop.Post(messages.Shutdown{})
			cancel()
			return
		default:
			fmt.Printf("unknown command %q\n", fields[0])
		}
	}
}

func printReport(rows []ledger.ReportRow) {
	fmt.Println("Joined Patient/Vaccination Data:")
	fmt.Println("PatientID | Age | PatientVaccine | PatientName | EventVaccine | DateAdministered")
	for _, r := range rows {
		fmt.Printf("%d | %s | %s | %s | %s | %s\n",
			r.PatientID, fmtFloat(r.Age), fmtStr(r.PatientVaccine), r.PatientName,
			fmtStr(r.EventVaccine), fmtStr(r.DateAdministered))
	}
}

func fmtFloat(f *float64) string {
	if f == nil {
		return "NULL"
	}
	return strconv.FormatFloat(*f, 'g', -1, 64)
}

func fmtStr(s *string) string {
	if s == nil {
		return "NULL"
	}
	return *s
}
