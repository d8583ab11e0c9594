// cmd/tools/registry-updater/main.go
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"portfolio-sync/pkg/registry"
)

var registryPath string

func main() {
	initCmd := flag.NewFlagSet("init", flag.ExitOnError)
	putCmd := flag.NewFlagSet("put", flag.ExitOnError)
	removeCmd := flag.NewFlagSet("remove", flag.ExitOnError)
	loginCmd := flag.NewFlagSet("login", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)

	for _, fs := range []*flag.FlagSet{initCmd, putCmd, removeCmd, loginCmd, validateCmd} {
		fs.StringVar(&registryPath, "path", "configs/mock-registry.json", "Path to registry file")
	}

	// Put command flags
	suffixPut := putCmd.String("suffix", "", "Endpoint suffix (e.g., /team)")
	dataFile := putCmd.String("file", "", "JSON file holding the payload")
	dataInline := putCmd.String("data", "", "Inline JSON payload")

	// Remove command flags
	suffixRemove := removeCmd.String("suffix", "", "Endpoint suffix to remove")

	// Login command flags
	email := loginCmd.String("email", "", "Accepted login email")
	password := loginCmd.String("password", "", "Accepted login password")
	userJSON := loginCmd.String("user", "", "User object returned on login (JSON)")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init":
		initCmd.Parse(os.Args[2:])
		reg, err := registry.Default()
		if err == nil {
			err = reg.Save(registryPath)
		}
		if err != nil {
			fmt.Printf("Error writing registry: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote default registry to %s\n", registryPath)

	case "put":
		putCmd.Parse(os.Args[2:])
		if *suffixPut == "" || (*dataFile == "") == (*dataInline == "") {
			fmt.Println("Error: suffix and exactly one of file or data are required for put.")
			putCmd.Usage()
			os.Exit(1)
		}
		raw := []byte(*dataInline)
		if *dataFile != "" {
			var err error
			if raw, err = os.ReadFile(*dataFile); err != nil {
				fmt.Printf("Error reading payload: %v\n", err)
				os.Exit(1)
			}
		}
		added, err := putEndpoint(*suffixPut, raw)
		if err != nil {
			fmt.Printf("Error updating endpoint: %v\n", err)
			os.Exit(1)
		}
		if added {
			fmt.Printf("Added endpoint: %s\n", *suffixPut)
		} else {
			fmt.Printf("Replaced endpoint: %s\n", *suffixPut)
		}

	case "remove":
		removeCmd.Parse(os.Args[2:])
		if *suffixRemove == "" {
			fmt.Println("Error: suffix is required for remove.")
			removeCmd.Usage()
			os.Exit(1)
		}
		if err := edit(func(reg *registry.MockRegistry) error { return reg.Remove(*suffixRemove) }); err != nil {
			fmt.Printf("Error removing endpoint: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Removed endpoint: %s\n", *suffixRemove)

	case "login":
		loginCmd.Parse(os.Args[2:])
		if *email == "" || *password == "" {
			fmt.Println("Error: email and password are required for login.")
			loginCmd.Usage()
			os.Exit(1)
		}
		err := edit(func(reg *registry.MockRegistry) error {
			reg.Login.Email = *email
			reg.Login.Password = *password
			if *userJSON != "" {
				var user map[string]interface{}
				if err := json.Unmarshal([]byte(*userJSON), &user); err != nil {
					return fmt.Errorf("invalid user JSON: %w", err)
				}
				reg.Login.User = user
			}
			return nil
		})
		if err != nil {
			fmt.Printf("Error updating login: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Updated mock login for %s\n", *email)

	case "validate":
		validateCmd.Parse(os.Args[2:])
		reg, err := registry.LoadRegistry(registryPath)
		if err == nil {
			err = reg.Validate()
		}
		if err != nil {
			fmt.Printf("Registry validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Registry validation passed. Found %d endpoints.\n", len(reg.Endpoints))

	case "help":
		fallthrough
	default:
		help()
	}
}

func putEndpoint(suffix string, raw []byte) (bool, error) {
	var data interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return false, fmt.Errorf("invalid payload JSON: %w", err)
	}
	var added bool
	err := edit(func(reg *registry.MockRegistry) error {
		var err error
		added, err = reg.Put(suffix, data)
		return err
	})
	return added, err
}

// edit loads the registry, applies fn and saves it back.
func edit(fn func(reg *registry.MockRegistry) error) error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to load registry: %w", err)
		}
		reg = &registry.MockRegistry{Version: "1.0.0"}
	}
	if err := fn(reg); err != nil {
		return err
	}
	return reg.Save(registryPath)
}

func help() {
	fmt.Print(`
Usage: registry-updater <command> [flags]

Commands:
  init      Write the built-in mock dataset to a file
  put       Add or replace the payload served for an endpoint suffix
  remove    Remove an endpoint
  login     Set the credentials the mock login accepts
  validate  Validate the registry file
  help      Show this help message

Examples:
  registry-updater init -path configs/mock-registry.json
  registry-updater put -suffix /team -file team.json
  registry-updater put -suffix /setting -data '{"settings":[{"theme":"space"}]}'
  registry-updater login -email admin@example.com -password secret
  registry-updater validate -path configs/mock-registry.json

Use 'registry-updater <command> -h' for more information about a command.
`)
}
