package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/antibyte/simplimath/pkg/auth"
	"github.com/antibyte/simplimath/pkg/configuration"
	"github.com/antibyte/simplimath/pkg/logger"
	"github.com/antibyte/simplimath/pkg/simplimath"
	"github.com/antibyte/simplimath/pkg/store"
	"github.com/antibyte/simplimath/pkg/terminal"
	tlsmanager "github.com/antibyte/simplimath/pkg/tls"
)

const codeHeader = "Write your code here (type 'end' to finish):"

func main() {
	configPath := flag.String("config", "settings.cfg", "path to the configuration file")
	file := flag.String("file", "", "run the program in this file instead of reading it interactively")
	serve := flag.Bool("serve", false, "start the websocket terminal server")
	save := flag.String("save", "", "store the program from -file (or stdin) under this name")
	run := flag.String("run", "", "run the stored program with this name")
	list := flag.Bool("list", false, "list stored programs")
	user := flag.String("user", "local", "owner of stored programs for -save, -run and -list")
	flag.Parse()

	if err := configuration.Initialize(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing configuration: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()
	logger.ConfigInfo("Configuration loaded from %s", *configPath)

	var err error
	switch {
	case *serve:
		err = runServer()
	case *save != "":
		err = saveProgram(*user, *save, *file)
	case *run != "":
		err = runStored(*user, *run)
	case *list:
		err = listPrograms(*user)
	case *file != "":
		err = runFile(*file)
	default:
		err = runInteractive()
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		logger.Close()
		os.Exit(1)
	}
}

// execute runs source with answers read from in and output on stdout.
func execute(source string, in *bufio.Reader) error {
	console := simplimath.NewStdConsole(in, os.Stdout)
	return simplimath.New(console, simplimath.ConfiguredOptions()...).Execute(source)
}

func runInteractive() error {
	fmt.Println(codeHeader)
	in := bufio.NewReader(os.Stdin)
	source, err := simplimath.ReadProgram(in)
	if err != nil {
		return err
	}
	return execute(source, in)
}

func runFile(path string) error {
	source, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return execute(string(source), bufio.NewReader(os.Stdin))
}

func openStore() (*store.Store, error) {
	return store.Open(configuration.GetString("Storage", "database_file", "simplimath.db"))
}

func saveProgram(owner, name, path string) error {
	var source []byte
	var err error
	if path != "" {
		source, err = os.ReadFile(path)
	} else {
		source, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return err
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	p, err := st.SaveProgram(owner, name, string(source))
	if err != nil {
		return err
	}
	fmt.Printf("Saved %s (%s)\n", p.Name, p.ID)
	return nil
}

func runStored(owner, name string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	p, err := st.LoadProgram(owner, name)
	if err != nil {
		return err
	}

	started := time.Now()
	execErr := execute(p.Source, bufio.NewReader(os.Stdin))
	record := &store.Run{
		ProgramID: p.ID,
		Owner:     owner,
		Source:    p.Source,
		StartedAt: started,
		Duration:  time.Since(started),
	}
	if execErr != nil {
		record.Error = execErr.Error()
	}
	if err := st.RecordRun(record); err != nil {
		logger.StorageWarn("Recording run of %s: %v", name, err)
	}
	return execErr
}

func listPrograms(owner string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	programs, err := st.ListPrograms(owner)
	if err != nil {
		return err
	}
	for _, p := range programs {
		fmt.Printf("%-24s %s\n", p.Name, p.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func runServer() error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	mux := http.NewServeMux()
	auth.NewHandlers(st).Register(mux)
	terminal.NewHandler(st).Register(mux)

	tlsManager, err := tlsmanager.NewTLSManager(tlsmanager.LoadConfig())
	if err != nil {
		return err
	}

	addr := configuration.GetString("Server", "listen_address", ":8080")
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		TLSConfig:         tlsManager.GetTLSConfig(),
	}
	servers := []*http.Server{server}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() {
		if tlsManager.IsEnabled() {
			logger.SecurityInfo("Listening with TLS on %s", addr)
			fmt.Printf("SimpliMath terminal listening on %s (TLS)\n", addr)
			errCh <- server.ListenAndServeTLS("", "")
			return
		}
		logger.Info(logger.AreaGeneral, "Listening on %s", addr)
		fmt.Printf("SimpliMath terminal listening on %s\n", addr)
		errCh <- server.ListenAndServe()
	}()

	if tlsManager.NeedsHTTPServer() {
		redirect := &http.Server{
			Addr:              tlsManager.GetRedirectAddress(),
			Handler:           tlsManager.GetHTTPHandler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		servers = append(servers, redirect)
		go func() {
			logger.SecurityInfo("HTTP redirect listening on %s", redirect.Addr)
			errCh <- redirect.ListenAndServe()
		}()
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			shutdown(servers)
			return err
		}
	case <-ctx.Done():
	}

	logger.Info(logger.AreaGeneral, "Shutting down")
	return shutdown(servers)
}

func shutdown(servers []*http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var firstErr error
	for _, s := range servers {
		if err := s.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
