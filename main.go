package main

import "github.com/freemchost/forumbot/cmd"

func main() {
	cmd.Execute()
}
