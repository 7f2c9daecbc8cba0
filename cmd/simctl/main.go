// Command simctl is an operator CLI for a running simnode's
// control-plane gRPC surface (spec.md §6).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/anvil-platform/simnode/internal/controlplane"
)

func main() {
	app := &cli.App{
		Name:  "simctl",
		Usage: "operate a simnode control-plane endpoint",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "simnode control-plane address", Value: "127.0.0.1:7420"},
		},
		Commands: []*cli.Command{
			distributeModuleCommand(),
			createMatchCommand(),
			finishMatchCommand(),
			deleteMatchCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "simctl: %v\n", err)
		os.Exit(1)
	}
}

func dial(c *cli.Context) (*controlplane.Client, *grpc.ClientConn, error) {
	conn, err := grpc.NewClient(c.String("addr"), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, err
	}
	return controlplane.NewClient(conn), conn, nil
}

func distributeModuleCommand() *cli.Command {
	return &cli.Command{
		Name:      "distribute-module",
		Usage:     "load an artifact-backed module into a container",
		ArgsUsage: "<containerId> <moduleName>",
		Action: func(c *cli.Context) error {
			if c.Args().Len() != 2 {
				return cli.Exit("expected <containerId> <moduleName>", 1)
			}
			client, conn, err := dial(c)
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := client.DistributeModule(context.Background(), c.Args().Get(0), c.Args().Get(1)); err != nil {
				return err
			}
			fmt.Println("module distributed")
			return nil
		},
	}
}

func createMatchCommand() *cli.Command {
	return &cli.Command{
		Name:      "create-match",
		Usage:     "create a match, optionally provisioning a new container",
		ArgsUsage: "<matchId> [moduleName...]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "container", Usage: "existing container id (omit to provision a new one)"},
		},
		Action: func(c *cli.Context) error {
			if c.Args().Len() < 1 {
				return cli.Exit("expected <matchId> [moduleName...]", 1)
			}
			client, conn, err := dial(c)
			if err != nil {
				return err
			}
			defer conn.Close()
			resp, err := client.CreateMatch(context.Background(), c.String("container"), c.Args().First(), c.Args().Tail())
			if err != nil {
				return err
			}
			fmt.Printf("container=%s match=%s\n",
				resp.Fields["containerId"].GetStringValue(),
				resp.Fields["matchId"].GetStringValue())
			return nil
		},
	}
}

func finishMatchCommand() *cli.Command {
	return &cli.Command{
		Name:      "finish-match",
		Usage:     "mark a match as finished",
		ArgsUsage: "<containerId> <matchId>",
		Action: func(c *cli.Context) error {
			if c.Args().Len() != 2 {
				return cli.Exit("expected <containerId> <matchId>", 1)
			}
			client, conn, err := dial(c)
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := client.FinishMatch(context.Background(), c.Args().Get(0), c.Args().Get(1)); err != nil {
				return err
			}
			fmt.Println("match finished")
			return nil
		},
	}
}

func deleteMatchCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete-match",
		Usage:     "delete a match",
		ArgsUsage: "<containerId> <matchId>",
		Action: func(c *cli.Context) error {
			if c.Args().Len() != 2 {
				return cli.Exit("expected <containerId> <matchId>", 1)
			}
			client, conn, err := dial(c)
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := client.DeleteMatch(context.Background(), c.Args().Get(0), c.Args().Get(1)); err != nil {
				return err
			}
			fmt.Println("match deleted")
			return nil
		},
	}
}
