package main

import "github.com/yugabyte/ysql-upgrade/cmd"

func main() {
	cmd.Execute()
}
