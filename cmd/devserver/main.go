// Command devserver runs a local mock of the damage-request API so the
// client can be developed and demoed without the production backend.
package main

import (
	"flag"
	"net/http"
	"os"

	"github.com/hti6/hti6-mobile/internal/devserver"
	"github.com/hti6/hti6-mobile/internal/utils"
)

func main() {
	addr := flag.String("addr", getEnv("DEVSERVER_ADDR", ":8080"), "listen address")
	login := flag.String("login", getEnv("DEVSERVER_LOGIN", "demo"), "seeded user login")
	password := flag.String("password", getEnv("DEVSERVER_PASSWORD", "demo"), "seeded user password")
	name := flag.String("name", getEnv("DEVSERVER_NAME", "Demo User"), "seeded user display name")
	secret := flag.String("secret", getEnv("DEVSERVER_JWT_SECRET", "dev-secret"), "JWT signing secret")
	uploadDir := flag.String("upload-dir", getEnv("DEVSERVER_UPLOAD_DIR", "_uploads"), "photo storage dir")
	flag.Parse()

	log := utils.NewStderrLogger()

	srv, err := devserver.New(devserver.Config{
		Login:     *login,
		Password:  *password,
		Name:      *name,
		JWTSecret: *secret,
		UploadDir: *uploadDir,
	}, log)
	if err != nil {
		log.Errorf("devserver: %v", err)
		os.Exit(1)
	}

	log.Infof("devserver listening on %s (user %q)", *addr, *login)
	if err := http.ListenAndServe(*addr, srv.Router()); err != nil {
		log.Errorf("devserver: %v", err)
		os.Exit(1)
	}
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
