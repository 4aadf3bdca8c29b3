package translator

import (
	"encoding/xml"

	"github.com/sourcearchive/indexer/pkg/apperrors"
)

type mavenPom struct {
	GroupID     string `xml:"groupId"`
	ArtifactID  string `xml:"artifactId"`
	Version     string `xml:"version"`
	Name        string `xml:"name"`
	Description string `xml:"description"`
	URL         string `xml:"url"`
	Licenses    []struct {
		Name string `xml:"name"`
	} `xml:"licenses>license"`
	SCM struct {
		URL        string `xml:"url"`
		Connection string `xml:"connection"`
	} `xml:"scm"`
	IssueManagement struct {
		URL string `xml:"url"`
	} `xml:"issueManagement"`
}

func translateMavenPom(raw []byte) (Document, error) {
	var pom mavenPom
	if err := xml.Unmarshal(raw, &pom); err != nil {
		return nil, &apperrors.ParseError{Ecosystem: string(EcosystemMaven), Err: err}
	}

	doc := Document{}
	switch {
	case pom.Name != "":
		doc["name"] = pom.Name
	case pom.ArtifactID != "":
		doc["name"] = pom.ArtifactID
	}
	if pom.GroupID != "" && pom.ArtifactID != "" {
		doc["identifier"] = pom.GroupID + ":" + pom.ArtifactID
	}
	if pom.Version != "" {
		doc["version"] = pom.Version
	}
	if pom.Description != "" {
		doc["description"] = pom.Description
	}
	if pom.URL != "" {
		doc["url"] = pom.URL
	}
	if len(pom.Licenses) > 0 {
		licenses := []any{}
		for _, l := range pom.Licenses {
			if l.Name != "" {
				licenses = append(licenses, l.Name)
			}
		}
		if len(licenses) == 1 {
			doc["license"] = licenses[0]
		} else if len(licenses) > 1 {
			doc["license"] = licenses
		}
	}
	switch {
	case pom.SCM.Connection != "":
		doc["codeRepository"] = pom.SCM.Connection
	case pom.SCM.URL != "":
		doc["codeRepository"] = pom.SCM.URL
	}
	if pom.IssueManagement.URL != "" {
		doc["issueTracker"] = pom.IssueManagement.URL
	}

	return doc, nil
}
