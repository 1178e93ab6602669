package main

import (
	"os"
	"regexp"
)

var (
	// <deployment>-<хеш ReplicaSet>-<суффикс пода>
	deploymentPod = regexp.MustCompile(`^(.+)-[a-z0-9]{5,10}-[a-z0-9]{5}$`)
	// <statefulset>-<порядковый номер>
	statefulSetPod = regexp.MustCompile(`^(.+)-\d+$`)
)

// parseOwnerName извлекает имя владельца пода (Deployment, StatefulSet)
// из hostname. Если hostname не похож на имя пода, возвращается как есть.
func parseOwnerName(hostname string) string {
	if m := deploymentPod.FindStringSubmatch(hostname); m != nil {
		return m[1]
	}
	if m := statefulSetPod.FindStringSubmatch(hostname); m != nil {
		return m[1]
	}
	return hostname
}

// resolveServiceID возвращает идентификатор экземпляра для topologymetrics.
func resolveServiceID(configured string) string {
	if configured != "" {
		return configured
	}
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		return "case-store"
	}
	return parseOwnerName(hostname)
}
