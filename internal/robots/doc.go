// Package robots evaluates robots.txt rules for the spider.
//
// An Agent caches the parsed rules per scheme and host, fetches each file
// once even when many workers ask at the same time, and fails open when
// robots.txt cannot be retrieved. Agent.Filter plugs the rules into a
// filter tree:
//
//	agent := robots.NewAgent(c, robots.WithUserAgent("crawlkit"))
//	f := filter.And(agent.Filter(), crawled)
package robots
